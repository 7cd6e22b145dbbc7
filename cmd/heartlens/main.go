package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/logging"
	"github.com/sanspareilsmyn/heartlens/internal/pipeline"
)

var configFile = flag.String("config", "configs/config.dev.yaml", "Path to the configuration file")

func main() {
	flag.Parse()
	os.Exit(run(*configFile))
}

// run wires the monitor and blocks until a signal or a component failure.
// The return value is the process exit code.
func run(path string) int {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration from %s: %v\n", path, err)
		return 1
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Opening a serial device blocks for its settle delay.
	pipe, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		sugar.Errorw("Failed to initialize pipeline", zap.Error(err))
		return 1
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			sugar.Warnw("Pipeline close reported an error", zap.Error(err))
		}
	}()

	logSource(logger, cfg.Acquisition.Source, pipe.Acquirer())
	sugar.Infow("HeartLens monitor ready",
		"config", path,
		"addr", cfg.Presentation.Addr,
		"frame_interval", cfg.Presentation.FrameInterval,
		"sampling_interval", cfg.Acquisition.SamplingInterval,
		"auto_start", cfg.Acquisition.AutoStart,
	)

	runErr := pipe.Run(ctx)
	level, msg := outcome(runErr)
	if level > zapcore.InfoLevel {
		logger.Error(msg, zap.Error(runErr))
		return 1
	}
	logger.Info(msg)
	return 0
}

type sourceReporter interface {
	SourceKind() string
	TransportErr() error
}

// logSource records which sample source actually came up. A transport that
// failed to open leaves the monitor running on the synthetic signal.
func logSource(logger *zap.Logger, configured string, acq sourceReporter) {
	active := acq.SourceKind()
	if err := acq.TransportErr(); err != nil {
		logger.Warn("Sample transport unavailable, monitor degraded to synthetic signal",
			zap.String("configured_source", configured),
			zap.String("active_source", active),
			zap.Error(err),
		)
		return
	}
	logger.Info("Sample source ready",
		zap.String("configured_source", configured),
		zap.String("active_source", active),
	)
}

// outcome maps the pipeline result to the final log entry. Cancellation is
// the normal signal-driven shutdown.
func outcome(err error) (zapcore.Level, string) {
	switch {
	case err == nil:
		return zapcore.InfoLevel, "HeartLens stopped."
	case errors.Is(err, context.Canceled):
		return zapcore.InfoLevel, "HeartLens stopped on signal."
	default:
		return zapcore.ErrorLevel, "HeartLens stopped due to error."
	}
}
