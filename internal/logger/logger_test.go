package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saga.log")

	log, err := New(Config{Level: "info", Encoding: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("turn complete", zap.String("slot", "abc"))
	log.Debug("hidden")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"turn complete"`)
	assert.Contains(t, out, `"slot":"abc"`)
	assert.Contains(t, out, `"level":"INFO"`)
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	log, err := New(Config{Level: "loud"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
	assert.False(t, log.Core().Enabled(zap.InfoLevel))
}
