package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/logging"
	"github.com/sanspareilsmyn/heartlens/internal/message"
	"github.com/sanspareilsmyn/heartlens/internal/waveform"
)

var (
	configFile = flag.String("config", "configs/config.dev.yaml", "Path to the configuration file")
	target     = flag.String("transport", config.SourceKafka, "Where to publish samples: kafka or nats")
	paused     = flag.Bool("paused", false, "Wait for a start command before publishing")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration from %s: %v\n", *configFile, err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		sugar.Info("Shutdown signal received, stopping producer...")
		cancel()
	}()

	signalCfg := cfg.Acquisition.Signal
	fn, err := waveform.New(signalCfg.Waveform, waveform.Params{
		Dominant:     waveform.Sinusoid{Amplitude: signalCfg.Amplitude, FrequencyHz: signalCfg.FrequencyHz, PhaseRad: signalCfg.PhaseRad},
		Interference: waveform.Sinusoid{Amplitude: signalCfg.InterferenceAmplitude, FrequencyHz: signalCfg.InterferenceFrequencyHz},
		NoiseMean:    signalCfg.NoiseMean,
		NoiseStdDev:  signalCfg.NoiseStdDev,
		HeartRateBPM: signalCfg.HeartRateBPM,
		Seed:         time.Now().UnixNano(),
	})
	if err != nil {
		sugar.Fatalw("Invalid waveform", zap.Error(err))
	}

	var sink tokenSink
	switch *target {
	case config.SourceKafka:
		sink, err = newKafkaSink(ctx, cfg.Kafka, logger.Named("kafka"))
	case config.SourceNATS:
		sink, err = newNATSSink(cfg.NATS, logger.Named("nats"))
	default:
		err = fmt.Errorf("unknown transport %q", *target)
	}
	if err != nil {
		sugar.Fatalw("Failed to create sink", zap.Error(err))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			sugar.Warnw("Error closing sink", zap.Error(err))
		}
	}()

	sugar.Infow("Starting sample producer",
		"transport", *target,
		"waveform", signalCfg.Waveform,
		"sampling_interval", cfg.Acquisition.SamplingInterval,
	)
	run(ctx, sink, fn, cfg.Acquisition.SamplingInterval, !*paused, sugar)
}

// run publishes one token per interval while running. The waveform clock
// restarts on every start command.
func run(ctx context.Context, sink tokenSink, fn func(float64) float64, interval time.Duration, running bool, sugar *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var produced, failed int64
	for {
		select {
		case cmd := <-sink.Commands():
			switch cmd {
			case acquisition.CommandStart:
				if !running {
					start = time.Now()
				}
				running = true
			case acquisition.CommandStop:
				running = false
			}
			sugar.Infow("Control command received", "command", string(cmd), "running", running, "produced", produced)

		case <-ticker.C:
			if !running {
				continue
			}
			token := message.FormatToken(fn(time.Since(start).Seconds()))
			if err := sink.Publish(ctx, token); err != nil {
				if ctx.Err() != nil {
					return
				}
				failed++
				if failed%1000 == 1 {
					sugar.Warnw("Error publishing sample", zap.Error(err), "failed", failed)
				}
				continue
			}
			produced++

		case <-ctx.Done():
			sugar.Infow("Producer loop stopped.", "produced", produced, "failed", failed)
			return
		}
	}
}
