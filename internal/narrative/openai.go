package narrative

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAILLM implements StoryProvider using OpenAI's chat completions and
// image generation APIs.
type OpenAILLM struct {
	client openai.Client
	config LLMConfig
}

// NewOpenAILLM creates an OpenAI-backed provider.
// Returns an error if the API key or model is missing.
func NewOpenAILLM(config LLMConfig) (*OpenAILLM, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.ImageModel == "" {
		config.ImageModel = openai.ImageModelDallE3
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAILLM{
		client: openai.NewClient(opts...),
		config: config,
	}, nil
}

// GenerateStory requests the next beat in JSON mode and normalizes the reply.
func (o *OpenAILLM) GenerateStory(ctx context.Context, prompt string) (Envelope[State], error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(o.config.maxTokens()),
	}
	if o.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(o.config.Temperature))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Envelope[State]{}, err
	}

	usage := o.usage(completion)
	if len(completion.Choices) == 0 {
		return Envelope[State]{Usage: usage}, fmt.Errorf("%w: no choices in reply", ErrParse)
	}

	state, err := decodeState(completion.Choices[0].Message.Content)
	if err != nil {
		return Envelope[State]{Usage: usage}, err
	}

	return Envelope[State]{Data: state, Usage: usage}, nil
}

// GenerateImage renders with DALL-E. Standard quality uses the "hd" tier,
// which is billed as a premium image.
func (o *OpenAILLM) GenerateImage(ctx context.Context, prompt, style string, quality ImageQuality) (Envelope[string], error) {
	params := openai.ImageGenerateParams{
		Prompt:         ImagePrompt(prompt, style, quality),
		Model:          o.config.ImageModel,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		Quality:        openai.ImageGenerateParamsQualityStandard,
	}

	premium := quality != QualityFast && o.config.ImageModel == openai.ImageModelDallE3
	if premium {
		params.Quality = openai.ImageGenerateParamsQualityHD
	}

	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return Envelope[string]{}, err
	}

	usage := Usage{Provider: ProviderOpenAI, IsPremium: premium}
	if len(resp.Data) == 0 {
		return Envelope[string]{Usage: usage}, fmt.Errorf("%w: no image in reply", ErrLLMFailed)
	}

	img := resp.Data[0]
	switch {
	case img.URL != "":
		return Envelope[string]{Data: img.URL, Usage: usage}, nil
	case img.B64JSON != "":
		return Envelope[string]{Data: "data:image/png;base64," + img.B64JSON, Usage: usage}, nil
	default:
		return Envelope[string]{Usage: usage}, fmt.Errorf("%w: image reply has neither url nor data", ErrLLMFailed)
	}
}

// GetChatResponse sends message under the sidekick persona.
func (o *OpenAILLM) GetChatResponse(ctx context.Context, message string, state State) (Envelope[string], error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ChatPersona(state)),
			openai.UserMessage(message),
		},
		MaxTokens: openai.Int(512),
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Envelope[string]{}, err
	}

	reply := ChatFallback
	if len(completion.Choices) > 0 && completion.Choices[0].Message.Content != "" {
		reply = completion.Choices[0].Message.Content
	}
	return Envelope[string]{Data: reply, Usage: o.usage(completion)}, nil
}

// DescribeError decodes *openai.Error values.
func (o *OpenAILLM) DescribeError(err error) (ErrorDescription, bool) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return ErrorDescription{}, false
	}
	return ErrorDescription{
		Provider:   ProviderOpenAI,
		StatusCode: apiErr.StatusCode,
		Status:     apiErr.Code,
		Message:    apiErr.Message,
	}, true
}

func (o *OpenAILLM) usage(c *openai.ChatCompletion) Usage {
	return Usage{
		Provider:     ProviderOpenAI,
		InputTokens:  int(c.Usage.PromptTokens),
		OutputTokens: int(c.Usage.CompletionTokens),
	}
}
