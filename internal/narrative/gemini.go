package narrative

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// storySchema constrains Gemini's reply to the narrative state object.
var storySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"storyText":    {Type: genai.TypeString},
		"choices":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"inventory":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"currentQuest": {Type: genai.TypeString},
		"visualPrompt": {Type: genai.TypeString},
		"worldStyle":   {Type: genai.TypeString},
		"genre":        {Type: genai.TypeString},
	},
	Required:         []string{"storyText", "choices", "inventory", "currentQuest", "visualPrompt", "worldStyle", "genre"},
	PropertyOrdering: []string{"storyText", "choices", "inventory", "currentQuest", "visualPrompt", "worldStyle", "genre"},
}

// GeminiLLM implements StoryProvider using the Gemini API. Images come back
// inline and are returned as data URIs.
type GeminiLLM struct {
	client *genai.Client
	config LLMConfig
}

// NewGeminiLLM creates a Gemini-backed provider.
func NewGeminiLLM(ctx context.Context, config LLMConfig) (*GeminiLLM, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.ImageModel == "" {
		config.ImageModel = "gemini-2.5-flash-image"
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: creating Gemini client: %w", ErrInvalidConfig, err)
	}

	return &GeminiLLM{
		client: client,
		config: config,
	}, nil
}

// GenerateStory requests a schema-constrained JSON reply.
func (g *GeminiLLM) GenerateStory(ctx context.Context, prompt string) (Envelope[State], error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   storySchema,
		MaxOutputTokens:  int32(g.config.maxTokens()),
	}
	if g.config.Temperature > 0 {
		temp := g.config.Temperature
		cfg.Temperature = &temp
	}

	res, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), cfg)
	if err != nil {
		return Envelope[State]{}, err
	}

	usage := g.usage(res)
	state, err := decodeState(res.Text())
	if err != nil {
		return Envelope[State]{Usage: usage}, err
	}
	return Envelope[State]{Data: state, Usage: usage}, nil
}

// GenerateImage asks the image model for a single inline image.
func (g *GeminiLLM) GenerateImage(ctx context.Context, prompt, style string, quality ImageQuality) (Envelope[string], error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	res, err := g.client.Models.GenerateContent(ctx, g.config.ImageModel, genai.Text(ImagePrompt(prompt, style, quality)), cfg)
	if err != nil {
		return Envelope[string]{}, err
	}

	usage := g.usage(res)
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data)
			return Envelope[string]{Data: uri, Usage: usage}, nil
		}
	}

	return Envelope[string]{Usage: usage}, fmt.Errorf("%w: no inline image in reply", ErrLLMFailed)
}

// GetChatResponse sends message with the sidekick persona as system instruction.
func (g *GeminiLLM) GetChatResponse(ctx context.Context, message string, state State) (Envelope[string], error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ChatPersona(state), genai.RoleUser),
		MaxOutputTokens:   512,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(message), cfg)
	if err != nil {
		return Envelope[string]{}, err
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		text = ChatFallback
	}
	return Envelope[string]{Data: text, Usage: g.usage(res)}, nil
}

// DescribeError decodes genai.APIError values. Gemini reports a bad key as a
// 400 with API_KEY_INVALID in the body, so the message matters here.
func (g *GeminiLLM) DescribeError(err error) (ErrorDescription, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return g.describe(apiErr), true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return g.describe(*apiErrPtr), true
	}
	return ErrorDescription{}, false
}

func (g *GeminiLLM) describe(e genai.APIError) ErrorDescription {
	msg := e.Message
	for _, d := range e.Details {
		if reason, ok := d["reason"].(string); ok && reason != "" {
			msg += " " + reason
		}
	}
	return ErrorDescription{
		Provider:   ProviderGemini,
		StatusCode: e.Code,
		Status:     e.Status,
		Message:    msg,
	}
}

func (g *GeminiLLM) usage(res *genai.GenerateContentResponse) Usage {
	u := Usage{Provider: ProviderGemini}
	if res.UsageMetadata != nil {
		u.InputTokens = int(res.UsageMetadata.PromptTokenCount)
		u.OutputTokens = int(res.UsageMetadata.CandidatesTokenCount)
	}
	return u
}
