// Package narrative provides LLM-powered story, image and chat generation for
// the adventure loop. It defines a provider-agnostic StoryProvider interface
// with concrete adapters for Gemini, OpenAI and Claude, and a deterministic
// mock for testing. Adapters consume pre-assembled prompts and return
// normalized envelopes carrying token usage.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
	ErrParse         = errors.New("reply is not valid JSON")
)

// Provider identifies one of the supported LLM backends.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
)

// Providers lists every supported backend in preference order.
var Providers = []Provider{ProviderGemini, ProviderOpenAI, ProviderClaude}

// ParseProvider converts a user supplied name into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (expected one of gemini, openai, claude)", s)
}

func (p Provider) String() string {
	return string(p)
}

// ImageQuality selects the rendering variant requested from image backends.
type ImageQuality string

const (
	QualityStandard ImageQuality = "standard"
	QualityFast     ImageQuality = "fast"
)

// StoryProvider is implemented once per backend. Implementations must be
// stateless and safe to reuse across turns.
type StoryProvider interface {
	// GenerateStory asks for the next narrative beat as structured JSON and
	// normalizes it into a State. Returns ErrParse if the reply is not JSON.
	GenerateStory(ctx context.Context, prompt string) (Envelope[State], error)

	// GenerateImage renders an illustration for prompt. Data is either an
	// inline data URI or a hosted URL; empty when the backend has no image
	// capability.
	GenerateImage(ctx context.Context, prompt, style string, quality ImageQuality) (Envelope[string], error)

	// GetChatResponse answers a sidekick chat message in the context of the
	// current story state.
	GetChatResponse(ctx context.Context, message string, state State) (Envelope[string], error)
}

// ErrorDescription is the structured view of a provider failure used for
// error classification.
type ErrorDescription struct {
	Provider   Provider
	StatusCode int    // HTTP status, 0 when the failure never reached the API
	Status     string // provider status string, e.g. "PERMISSION_DENIED"
	Message    string
}

// ErrorDescriber is implemented by adapters that can decode their SDK's error
// type. ok is false when err did not originate from the provider API.
type ErrorDescriber interface {
	DescribeError(err error) (desc ErrorDescription, ok bool)
}

// LLMConfig holds common configuration options for a provider adapter.
type LLMConfig struct {
	// Model is the text model identifier (e.g., "gpt-4o-mini", "gemini-2.5-flash")
	Model string

	// ImageModel is the image model identifier; ignored by text-only providers
	ImageModel string

	// Temperature controls randomness (0 = provider default)
	Temperature float32

	// MaxTokens limits the response length (0 = adapter default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string

	// BaseURL overrides the API endpoint (tests, proxies)
	BaseURL string
}

// DefaultLLMConfig returns sensible defaults for story generation with p.
func DefaultLLMConfig(p Provider) LLMConfig {
	cfg := LLMConfig{MaxTokens: 2048}
	switch p {
	case ProviderGemini:
		cfg.Model = "gemini-2.5-flash"
		cfg.ImageModel = "gemini-2.5-flash-image"
	case ProviderOpenAI:
		cfg.Model = "gpt-4o-mini"
		cfg.ImageModel = "dall-e-3"
	case ProviderClaude:
		cfg.Model = "claude-haiku-4-5"
	}
	return cfg
}

func (c LLMConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: missing API key", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}
	return nil
}

func (c LLMConfig) maxTokens() int64 {
	if c.MaxTokens > 0 {
		return int64(c.MaxTokens)
	}
	return 2048
}
