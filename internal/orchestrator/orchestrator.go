// Package orchestrator is the single entry point the game uses to reach an
// LLM provider. It picks the adapter registered for a provider, injects the
// player's credential, and sorts failures into credential problems, which the
// player must fix, and everything else, which is passed through untouched.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Yates-Labs/saga/internal/credential"
	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/usage"
)

// Capability names used in logs and metrics.
const (
	CapabilityStory = "story"
	CapabilityImage = "image"
	CapabilityChat  = "chat"
)

// DefaultClientTTL is how long a constructed adapter is reused.
const DefaultClientTTL = 30 * time.Minute

// Factory builds an adapter from a fully populated config.
type Factory func(ctx context.Context, config narrative.LLMConfig) (narrative.StoryProvider, error)

// DefaultFactories returns the adapters for every built-in provider.
func DefaultFactories() map[narrative.Provider]Factory {
	return map[narrative.Provider]Factory{
		narrative.ProviderGemini: func(ctx context.Context, c narrative.LLMConfig) (narrative.StoryProvider, error) {
			return narrative.NewGeminiLLM(ctx, c)
		},
		narrative.ProviderOpenAI: func(_ context.Context, c narrative.LLMConfig) (narrative.StoryProvider, error) {
			return narrative.NewOpenAILLM(c)
		},
		narrative.ProviderClaude: func(_ context.Context, c narrative.LLMConfig) (narrative.StoryProvider, error) {
			return narrative.NewClaudeLLM(c)
		},
	}
}

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	// Credentials resolves API keys; defaults to credential.EnvSource.
	Credentials credential.Source

	// Configs overrides the per-provider adapter config. APIKey is always
	// taken from Credentials.
	Configs map[narrative.Provider]narrative.LLMConfig

	// Factories replaces the adapter table; defaults to DefaultFactories.
	Factories map[narrative.Provider]Factory

	// ClientTTL bounds how long an adapter is reused; defaults to DefaultClientTTL.
	ClientTTL time.Duration

	Logger *zap.Logger
}

// Dispatcher routes capability calls to provider adapters. It holds no
// per-call state and never retries.
type Dispatcher struct {
	credentials credential.Source
	configs     map[narrative.Provider]narrative.LLMConfig
	factories   map[narrative.Provider]Factory
	clients     *cache.Cache
	logger      *zap.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Credentials == nil {
		opts.Credentials = credential.EnvSource{}
	}
	if opts.Factories == nil {
		opts.Factories = DefaultFactories()
	}
	if opts.ClientTTL <= 0 {
		opts.ClientTTL = DefaultClientTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Dispatcher{
		credentials: opts.Credentials,
		configs:     opts.Configs,
		factories:   opts.Factories,
		clients:     cache.New(opts.ClientTTL, 2*opts.ClientTTL),
		logger:      opts.Logger,
	}
}

// Supports reports whether an adapter is registered for p.
func (d *Dispatcher) Supports(p narrative.Provider) bool {
	_, ok := d.factories[p]
	return ok
}

// GenerateStoryBeat asks provider for the narrative beat described by prompt.
func (d *Dispatcher) GenerateStoryBeat(ctx context.Context, prompt string, provider narrative.Provider) (narrative.Envelope[narrative.State], error) {
	return dispatch(ctx, d, provider, CapabilityStory, func(sp narrative.StoryProvider) (narrative.Envelope[narrative.State], error) {
		return sp.GenerateStory(ctx, prompt)
	})
}

// GenerateImage asks provider for an illustration. Data is empty when the
// provider cannot render images.
func (d *Dispatcher) GenerateImage(ctx context.Context, prompt, style string, provider narrative.Provider, quality narrative.ImageQuality) (narrative.Envelope[string], error) {
	env, err := dispatch(ctx, d, provider, CapabilityImage, func(sp narrative.StoryProvider) (narrative.Envelope[string], error) {
		return sp.GenerateImage(ctx, prompt, style, quality)
	})
	if err == nil && env.Data != "" {
		imagesTotal.WithLabelValues(string(provider), strconv.FormatBool(env.Usage.IsPremium)).Inc()
	}
	return env, err
}

// GetChatResponse asks provider for a sidekick reply to message.
func (d *Dispatcher) GetChatResponse(ctx context.Context, message string, state narrative.State, provider narrative.Provider) (narrative.Envelope[string], error) {
	return dispatch(ctx, d, provider, CapabilityChat, func(sp narrative.StoryProvider) (narrative.Envelope[string], error) {
		return sp.GetChatResponse(ctx, message, state)
	})
}

// CalculateEstimatedCost prices the given counts with provider's tier rates.
func (d *Dispatcher) CalculateEstimatedCost(inputTokens, outputTokens, imageCount, premiumImageCount int, provider narrative.Provider, tier usage.Tier) float64 {
	return usage.EstimateCost(inputTokens, outputTokens, imageCount, premiumImageCount, provider, tier)
}

// dispatch runs call against the adapter for provider and classifies any
// failure. Non-credential errors are returned as the same value.
func dispatch[T any](ctx context.Context, d *Dispatcher, provider narrative.Provider, capability string, call func(narrative.StoryProvider) (narrative.Envelope[T], error)) (narrative.Envelope[T], error) {
	log := d.logger.With(zap.String("provider", string(provider)), zap.String("capability", capability))

	sp, err := d.adapter(ctx, provider)
	if err != nil {
		status := statusError
		switch err.(type) {
		case *UnsupportedProviderError:
			status = statusUnsupported
		case *AuthenticationError:
			status = statusAuthError
		}
		requestsTotal.WithLabelValues(string(provider), capability, status).Inc()
		log.Warn("provider unavailable", zap.Error(err))
		return narrative.Envelope[T]{}, err
	}

	start := time.Now()
	env, err := call(sp)
	elapsed := time.Since(start)
	requestDuration.WithLabelValues(string(provider), capability).Observe(elapsed.Seconds())

	if err != nil {
		if d.isAuthFailure(sp, provider, err) {
			requestsTotal.WithLabelValues(string(provider), capability, statusAuthError).Inc()
			log.Warn("provider rejected credential", zap.Duration("duration", elapsed), zap.Error(err))
			return narrative.Envelope[T]{}, &AuthenticationError{Provider: provider, Err: err}
		}
		requestsTotal.WithLabelValues(string(provider), capability, statusError).Inc()
		log.Error("provider request failed", zap.Duration("duration", elapsed), zap.Error(err))
		return env, err
	}

	requestsTotal.WithLabelValues(string(provider), capability, statusOK).Inc()
	tokensTotal.WithLabelValues(string(provider), "input").Add(float64(env.Usage.InputTokens))
	tokensTotal.WithLabelValues(string(provider), "output").Add(float64(env.Usage.OutputTokens))
	log.Debug("provider request complete",
		zap.Duration("duration", elapsed),
		zap.Int("input_tokens", env.Usage.InputTokens),
		zap.Int("output_tokens", env.Usage.OutputTokens),
	)
	return env, nil
}

// isAuthFailure describes err with the adapter's own decoder when it has one,
// falling back to the bare message with no status.
func (d *Dispatcher) isAuthFailure(sp narrative.StoryProvider, provider narrative.Provider, err error) bool {
	if describer, ok := sp.(narrative.ErrorDescriber); ok {
		if desc, ok := describer.DescribeError(err); ok {
			if desc.Provider == "" {
				desc.Provider = provider
			}
			return ClassifyError(desc)
		}
	}
	return ClassifyError(narrative.ErrorDescription{Provider: provider, Message: err.Error()})
}

// adapter returns the cached adapter for provider and its current credential,
// building one on first use.
func (d *Dispatcher) adapter(ctx context.Context, provider narrative.Provider) (narrative.StoryProvider, error) {
	factory, ok := d.factories[provider]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: provider}
	}

	secret := d.credentials.Get(provider)
	if secret == "" {
		return nil, &AuthenticationError{Provider: provider, Err: ErrMissingCredential}
	}

	key := clientKey(provider, secret)
	if cached, ok := d.clients.Get(key); ok {
		return cached.(narrative.StoryProvider), nil
	}

	config := d.config(provider)
	config.APIKey = secret
	sp, err := factory(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter: %w", provider, err)
	}

	d.clients.Set(key, sp, cache.DefaultExpiration)
	d.logger.Debug("adapter created", zap.String("provider", string(provider)), zap.String("model", config.Model))
	return sp, nil
}

func (d *Dispatcher) config(provider narrative.Provider) narrative.LLMConfig {
	base := narrative.DefaultLLMConfig(provider)
	override, ok := d.configs[provider]
	if !ok {
		return base
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.ImageModel != "" {
		base.ImageModel = override.ImageModel
	}
	if override.Temperature > 0 {
		base.Temperature = override.Temperature
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	return base
}

// clientKey keys the adapter cache without keeping the secret itself.
func clientKey(provider narrative.Provider, secret string) string {
	return fmt.Sprintf("%s:%x", provider, sha256.Sum256([]byte(secret)))
}
