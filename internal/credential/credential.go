// Package credential stores the per-provider API keys the player supplies and
// resolves which secret a provider call should use.
package credential

import (
	"fmt"
	"os"
	"strings"

	"github.com/Yates-Labs/saga/internal/kvstore"
	"github.com/Yates-Labs/saga/internal/narrative"
)

// KeyPrefix is prepended to the provider id to form the storage key.
const KeyPrefix = "saga_api_key_"

// Source resolves the secret for a provider. An empty string means no
// credential is configured.
type Source interface {
	Get(p narrative.Provider) string
}

// Store persists one secret per provider in a kvstore.Store. Secrets are
// stored as plain text without expiry.
type Store struct {
	kv kvstore.Store
}

// NewStore wraps kv.
func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func storageKey(p narrative.Provider) string {
	return KeyPrefix + string(p)
}

// Get returns the stored secret for p, or "" when none is stored or the
// backing store cannot be read.
func (s *Store) Get(p narrative.Provider) string {
	v, ok, err := s.kv.Get(storageKey(p))
	if err != nil || !ok {
		return ""
	}
	return v
}

// Set stores secret for p. An empty secret removes the stored value.
func (s *Store) Set(p narrative.Provider, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		if err := s.kv.Delete(storageKey(p)); err != nil {
			return fmt.Errorf("clearing %s key: %w", p, err)
		}
		return nil
	}
	if err := s.kv.Set(storageKey(p), secret); err != nil {
		return fmt.Errorf("saving %s key: %w", p, err)
	}
	return nil
}

// Has reports whether a non-empty secret is stored for p.
func (s *Store) Has(p narrative.Provider) bool {
	return s.Get(p) != ""
}

// ClearAll removes every stored secret.
func (s *Store) ClearAll() error {
	keys, err := s.kv.Keys(KeyPrefix)
	if err != nil {
		return fmt.Errorf("listing stored keys: %w", err)
	}
	for _, k := range keys {
		if err := s.kv.Delete(k); err != nil {
			return fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	return nil
}

// envVars lists the environment variables consulted per provider, in order.
var envVars = map[narrative.Provider][]string{
	narrative.ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	narrative.ProviderOpenAI: {"OPENAI_API_KEY"},
	narrative.ProviderClaude: {"ANTHROPIC_API_KEY"},
}

// EnvSource reads secrets from the process environment.
type EnvSource struct{}

func (EnvSource) Get(p narrative.Provider) string {
	for _, name := range envVars[p] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// EnvVars returns the environment variable names checked for p.
func EnvVars(p narrative.Provider) []string {
	return envVars[p]
}

// Chain returns the first non-empty secret from its sources.
type Chain []Source

func (c Chain) Get(p narrative.Provider) string {
	for _, src := range c {
		if v := src.Get(p); v != "" {
			return v
		}
	}
	return ""
}

// Static is a fixed provider to secret map.
type Static map[narrative.Provider]string

func (s Static) Get(p narrative.Provider) string {
	return s[p]
}
