package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeLLM implements StoryProvider using Anthropic's Messages API. Claude
// has no image generation, so GenerateImage is a no-op.
type ClaudeLLM struct {
	client anthropic.Client
	config LLMConfig
}

// NewClaudeLLM creates a Claude-backed provider.
func NewClaudeLLM(config LLMConfig) (*ClaudeLLM, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &ClaudeLLM{
		client: anthropic.NewClient(opts...),
		config: config,
	}, nil
}

// GenerateStory asks for the JSON object in plain text and parses it out of
// the reply, since the Messages API has no schema-constrained mode.
func (c *ClaudeLLM) GenerateStory(ctx context.Context, prompt string) (Envelope[State], error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: c.config.maxTokens(),
		System: []anthropic.TextBlockParam{
			{Text: StorySystemInstruction + "\nRespond with the JSON object only, without markdown fences."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.config.Temperature))
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Envelope[State]{}, err
	}

	usage := c.usage(message)
	raw, ok := extractJSONObject(messageText(message))
	if !ok {
		return Envelope[State]{Usage: usage}, fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}

	state, err := decodeState(raw)
	if err != nil {
		return Envelope[State]{Usage: usage}, err
	}
	return Envelope[State]{Data: state, Usage: usage}, nil
}

// GenerateImage returns an empty result without calling the API.
func (c *ClaudeLLM) GenerateImage(ctx context.Context, prompt, style string, quality ImageQuality) (Envelope[string], error) {
	return Envelope[string]{Usage: Usage{Provider: ProviderClaude}}, nil
}

// GetChatResponse sends message under the sidekick persona.
func (c *ClaudeLLM) GetChatResponse(ctx context.Context, message string, state State) (Envelope[string], error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: ChatPersona(state)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	}

	reply, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Envelope[string]{}, err
	}

	text := strings.TrimSpace(messageText(reply))
	if text == "" {
		text = ChatFallback
	}
	return Envelope[string]{Data: text, Usage: c.usage(reply)}, nil
}

// DescribeError decodes *anthropic.Error values. The SDK keeps the response
// body raw, so the message is read from its nested error object.
func (c *ClaudeLLM) DescribeError(err error) (ErrorDescription, bool) {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return ErrorDescription{}, false
	}

	desc := ErrorDescription{
		Provider:   ProviderClaude,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.RawJSON(),
	}

	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(apiErr.RawJSON()), &body) == nil && body.Error.Message != "" {
		desc.Status = body.Error.Type
		desc.Message = body.Error.Message
	}
	return desc, true
}

func (c *ClaudeLLM) usage(m *anthropic.Message) Usage {
	return Usage{
		Provider:     ProviderClaude,
		InputTokens:  int(m.Usage.InputTokens),
		OutputTokens: int(m.Usage.OutputTokens),
	}
}

// messageText concatenates the text blocks of a reply.
func messageText(m *anthropic.Message) string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// extractJSONObject returns the outermost {...} span of text, tolerating
// markdown fences and prose around the object.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
