package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/saga/internal/kvstore"
	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/usage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"SAGA_PROVIDER", "SAGA_TIER", "SAGA_GENRE", "SAGA_IMAGES", "SAGA_QUALITY", "SAGA_DATA_DIR", "SAGA_LOG_LEVEL", "SAGA_METRICS_ADDR"} {
		t.Setenv(name, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, narrative.ProviderGemini, cfg.ProviderID())
	assert.Equal(t, usage.TierBase, cfg.TierID())
	assert.Equal(t, int64(kvstore.DefaultQuota), cfg.QuotaBytes)
	assert.Equal(t, narrative.QualityStandard, cfg.ImageQuality())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
provider = "claude"
tier = "elevated"
images = true
quality = "fast"
data_dir = "/var/lib/saga"

[log]
level = "debug"

[models.openai]
model = "gpt-4o"
temperature = 0.7
base_url = "http://localhost:9999/v1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SAGA_PROVIDER", "openai")
	t.Setenv("SAGA_IMAGES", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, narrative.ProviderOpenAI, cfg.ProviderID())
	assert.Equal(t, usage.TierElevated, cfg.TierID())
	assert.False(t, cfg.Images)
	assert.Equal(t, narrative.QualityFast, cfg.ImageQuality())
	assert.Equal(t, "debug", cfg.LoggerConfig().Level)

	dbPath, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/saga", "saga.db"), dbPath)

	models := cfg.LLMConfigs()
	require.Contains(t, models, narrative.ProviderOpenAI)
	assert.Equal(t, "gpt-4o", models[narrative.ProviderOpenAI].Model)
	assert.InDelta(t, 0.7, models[narrative.ProviderOpenAI].Temperature, 1e-6)
	assert.Equal(t, "http://localhost:9999/v1", models[narrative.ProviderOpenAI].BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`provider = "mistral"`), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`quality = "ultra"`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`provider = [`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Provider = "claude"
	cfg.Genre = "Noir"
	cfg.Models["claude"] = ModelConfig{Model: "claude-sonnet-4-5", MaxTokens: 4096}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, narrative.ProviderClaude, loaded.ProviderID())
	assert.Equal(t, "Noir", loaded.Genre)
	assert.Equal(t, 4096, loaded.Models["claude"].MaxTokens)
}
