package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sanspareilsmyn/heartlens/internal/config"
)

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(config.LogConfig{
		Level:              "debug",
		Format:             "json",
		FileLoggingEnabled: true,
		Directory:          dir,
		Filename:           "heartlens.log",
		MaxSize:            1,
	})
	require.NoError(t, err)

	logger.Info("Acquisition started", zap.Uint64("session", 3))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "heartlens.log"))
	require.NoError(t, err)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "Acquisition started" {
			found = true
			assert.Equal(t, "INFO", entry["level"])
			assert.Equal(t, float64(3), entry["session"])
		}
	}
	assert.True(t, found)
}

func TestNoOutputs(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "info", Format: "json"})
	assert.ErrorIs(t, err, ErrNoOutputs)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	level, err = parseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}
