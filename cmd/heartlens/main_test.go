package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
)

type fakeSource struct {
	kind string
	err  error
}

func (f fakeSource) SourceKind() string  { return f.kind }
func (f fakeSource) TransportErr() error { return f.err }

func TestOutcome(t *testing.T) {
	level, _ := outcome(nil)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, msg := outcome(fmt.Errorf("analyzer: %w", context.Canceled))
	assert.Equal(t, zapcore.InfoLevel, level)
	assert.Contains(t, msg, "signal")

	level, _ = outcome(errors.New("listen tcp: address in use"))
	assert.Equal(t, zapcore.ErrorLevel, level)
}

func TestLogSourceReportsDegradedTransport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cause := fmt.Errorf("%w: dial tcp 127.0.0.1:1", acquisition.ErrTransportUnavailable)

	logSource(zap.New(core), "kafka", fakeSource{kind: "signal", err: cause})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "kafka", fields["configured_source"])
	assert.Equal(t, "signal", fields["active_source"])
	assert.Contains(t, fields["error"], "dial tcp")
}

func TestLogSourceReportsHealthySource(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	logSource(zap.New(core), "signal", fakeSource{kind: "signal"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.InfoLevel, logs.All()[0].Level)
}

func TestRunRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presentation:\n  frameInterval: 0s\n"), 0o600))

	assert.Equal(t, 1, run(path))
	assert.Equal(t, 1, run(filepath.Join(t.TempDir(), "missing.yaml")))
}
