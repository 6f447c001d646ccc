// Package config loads saga's settings from ~/.saga/config.toml with SAGA_*
// environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Yates-Labs/saga/internal/kvstore"
	"github.com/Yates-Labs/saga/internal/logger"
	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/usage"
)

// Config is the full settings file.
type Config struct {
	Provider string `toml:"provider"`
	Tier     string `toml:"tier"`
	Genre    string `toml:"genre"`
	Images   bool   `toml:"images"`
	Quality  string `toml:"quality"`

	// DataDir holds the saga database. Defaults to the config directory.
	DataDir    string `toml:"data_dir"`
	QuotaBytes int64  `toml:"quota_bytes"`

	Log     LogConfig              `toml:"log"`
	Metrics MetricsConfig          `toml:"metrics"`
	Models  map[string]ModelConfig `toml:"models"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"`
	File     string `toml:"file"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// ModelConfig overrides the adapter defaults of one provider.
type ModelConfig struct {
	Model       string  `toml:"model"`
	ImageModel  string  `toml:"image_model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	BaseURL     string  `toml:"base_url"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Provider:   string(narrative.ProviderGemini),
		Tier:       string(usage.TierBase),
		Genre:      narrative.DefaultGenre,
		Images:     false,
		Quality:    string(narrative.QualityStandard),
		QuotaBytes: kvstore.DefaultQuota,
		Log:        LogConfig{Level: "warn", Encoding: "console"},
		Models:     map[string]ModelConfig{},
	}
}

// Dir returns ~/.saga.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".saga"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads path (the default path when empty) over the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides copies SAGA_* variables over the file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SAGA_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("SAGA_TIER"); v != "" {
		c.Tier = v
	}
	if v := os.Getenv("SAGA_GENRE"); v != "" {
		c.Genre = v
	}
	if v := os.Getenv("SAGA_IMAGES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Images = b
		}
	}
	if v := os.Getenv("SAGA_QUALITY"); v != "" {
		c.Quality = v
	}
	if v := os.Getenv("SAGA_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SAGA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SAGA_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if _, err := narrative.ParseProvider(c.Provider); err != nil {
		return err
	}
	if _, err := usage.ParseTier(c.Tier); err != nil {
		return err
	}
	switch narrative.ImageQuality(strings.ToLower(c.Quality)) {
	case narrative.QualityStandard, narrative.QualityFast:
	default:
		return fmt.Errorf("unknown image quality %q (expected standard or fast)", c.Quality)
	}
	if c.QuotaBytes < 0 {
		return fmt.Errorf("quota_bytes must not be negative")
	}
	for name := range c.Models {
		if _, err := narrative.ParseProvider(name); err != nil {
			return fmt.Errorf("models: %w", err)
		}
	}
	return nil
}

// DBPath returns the location of the saga database.
func (c *Config) DBPath() (string, error) {
	dir := c.DataDir
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return filepath.Join(dir, "saga.db"), nil
}

// ProviderID returns the validated default provider.
func (c *Config) ProviderID() narrative.Provider {
	p, err := narrative.ParseProvider(c.Provider)
	if err != nil {
		return narrative.ProviderGemini
	}
	return p
}

// TierID returns the validated tier.
func (c *Config) TierID() usage.Tier {
	t, err := usage.ParseTier(c.Tier)
	if err != nil {
		return usage.TierBase
	}
	return t
}

// ImageQuality returns the validated image quality.
func (c *Config) ImageQuality() narrative.ImageQuality {
	if narrative.ImageQuality(strings.ToLower(c.Quality)) == narrative.QualityFast {
		return narrative.QualityFast
	}
	return narrative.QualityStandard
}

// LLMConfigs converts the models table into adapter overrides.
func (c *Config) LLMConfigs() map[narrative.Provider]narrative.LLMConfig {
	out := make(map[narrative.Provider]narrative.LLMConfig, len(c.Models))
	for name, m := range c.Models {
		p, err := narrative.ParseProvider(name)
		if err != nil {
			continue
		}
		out[p] = narrative.LLMConfig{
			Model:       m.Model,
			ImageModel:  m.ImageModel,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			BaseURL:     m.BaseURL,
		}
	}
	return out
}

// LoggerConfig converts the log table for logger.New.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Encoding:   c.Log.Encoding,
		OutputPath: c.Log.File,
	}
}
