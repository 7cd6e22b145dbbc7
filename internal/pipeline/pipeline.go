// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/buffer"
	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/estimator"
	"github.com/sanspareilsmyn/heartlens/internal/presentation"
	"github.com/sanspareilsmyn/heartlens/internal/transport"
	"github.com/sanspareilsmyn/heartlens/internal/waveform"
)

// Pipeline orchestrates the different stages: acquisition, analysis, presentation.
type Pipeline struct {
	buffer    *buffer.SampleBuffer
	estimator *estimator.RateEstimator
	acquirer  *acquisition.Acquirer
	analyzer  *Analyzer
	server    *presentation.Server
	logger    *zap.Logger
}

// New creates and wires up a new pipeline. The configured transport is opened
// here; if it cannot be, acquisition falls back to the configured waveform.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	initLogger := logger.Named("pipeline.init")
	initLogger.Debug("Creating pipeline components...")

	buf := buffer.New(cfg.Buffer.MaxDataLength)
	initLogger.Debug("Sample buffer created", zap.Int("max_data_length", buf.Cap()))

	est, err := estimator.New(estimatorConfig(cfg), logger.Named("estimator"))
	if err != nil {
		initLogger.Error("Failed to create estimator", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEstimatorCreationFailed, err)
	}

	opts := []acquisition.Option{acquisition.WithRestartHook(est.Reset)}
	if open := openFunc(cfg, logger.Named("transport")); open != nil {
		opts = append(opts, acquisition.WithTransport(open))
	}
	acq := acquisition.New(ctx, buf, acquisition.Config{
		SamplingInterval: cfg.Acquisition.SamplingInterval,
		RestartPolicy:    acquisition.RestartPolicy(cfg.Acquisition.RestartPolicy),
	}, logger.Named("acquisition"), opts...)

	if acq.SourceKind() == "none" {
		if err := acq.TransportErr(); err != nil {
			initLogger.Warn("Transport unavailable, falling back to synthetic signal",
				zap.String("source", cfg.Acquisition.Source),
				zap.String("waveform", cfg.Acquisition.Signal.Waveform),
				zap.Error(err),
			)
		}
		fn, err := waveform.New(cfg.Acquisition.Signal.Waveform, signalParams(cfg.Acquisition.Signal))
		if err != nil {
			_ = acq.Close()
			return nil, fmt.Errorf("%w: %w", ErrSignalSetupFailed, err)
		}
		if err := acq.SetSignalFunction(fn); err != nil {
			_ = acq.Close()
			return nil, fmt.Errorf("%w: %w", ErrSignalSetupFailed, err)
		}
	}
	initLogger.Debug("Acquirer created", zap.String("source_kind", acq.SourceKind()))

	server := presentation.NewServer(cfg.Presentation, acq, logger.Named("presentation"))
	reporter := NewReporter(cfg.Alerts, logger.Named("reporter"))
	analyzer := NewAnalyzer(buf, est, acq.Enabled, reporter, server, cfg.Presentation.FrameInterval, logger.Named("analyzer"))

	p := &Pipeline{
		buffer:    buf,
		estimator: est,
		acquirer:  acq,
		analyzer:  analyzer,
		server:    server,
		logger:    logger.Named("pipeline"),
	}

	if cfg.Acquisition.AutoStart {
		if err := acq.Start(ctx); err != nil {
			// The session is running locally even if the device did not acknowledge.
			initLogger.Warn("Start command failed", zap.Error(err))
		}
	}

	initLogger.Info("Pipeline instance created successfully", zap.String("source_kind", acq.SourceKind()))
	return p, nil
}

func estimatorConfig(cfg *config.Config) estimator.Config {
	return estimator.Config{
		MaxDataLength:        cfg.Buffer.MaxDataLength,
		SamplingInterval:     cfg.Acquisition.SamplingInterval,
		DataProportion:       cfg.Estimator.DataProportion,
		CalculationDelay:     cfg.Estimator.CalculationDelay,
		RateHistoryMaxLength: cfg.Estimator.RateHistoryMaxLength,
	}
}

// openFunc returns nil for the signal source.
func openFunc(cfg *config.Config, logger *zap.Logger) acquisition.OpenFunc {
	switch cfg.Acquisition.Source {
	case config.SourceSerial:
		return transport.OpenSerial(cfg.Serial, logger.Named("serial"))
	case config.SourceKafka:
		return transport.OpenKafka(cfg.Kafka, logger.Named("kafka"))
	case config.SourceNATS:
		return transport.OpenNATS(cfg.NATS, logger.Named("nats"))
	default:
		return nil
	}
}

func signalParams(sc config.SignalConfig) waveform.Params {
	return waveform.Params{
		Dominant: waveform.Sinusoid{
			Amplitude:   sc.Amplitude,
			FrequencyHz: sc.FrequencyHz,
			PhaseRad:    sc.PhaseRad,
		},
		Interference: waveform.Sinusoid{
			Amplitude:   sc.InterferenceAmplitude,
			FrequencyHz: sc.InterferenceFrequencyHz,
		},
		NoiseMean:    sc.NoiseMean,
		NoiseStdDev:  sc.NoiseStdDev,
		HeartRateBPM: sc.HeartRateBPM,
		Seed:         sc.Seed,
	}
}

// Acquirer exposes the acquisition switch, e.g. for tests.
func (p *Pipeline) Acquirer() *acquisition.Acquirer {
	return p.acquirer
}

// Run starts all pipeline components and waits for them to complete or context cancellation.
func (p *Pipeline) Run(ctx context.Context) error {
	sugar := p.logger.Sugar()

	// Components stop together when any of them fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	pipelineErr := make(chan error, 3) // acquisition, analyzer, presentation

	sugar.Info("Pipeline Run: Starting components...")

	wg.Add(3)
	go p.runComponent(ctx, &wg, pipelineErr, "acquisition", ErrAcquisitionRunFailed, p.acquirer.Run)
	go p.runComponent(ctx, &wg, pipelineErr, "analyzer", ErrAnalyzerRunFailed, p.analyzer.Run)
	go p.runComponent(ctx, &wg, pipelineErr, "presentation", ErrPresentationRunFailed, p.server.Run)

	// Wait for context cancellation or the first error from any component
	var firstErr error
	select {
	case <-ctx.Done():
		sugar.Info("Pipeline Run: Context cancelled. Waiting for components to finish...")
		firstErr = ctx.Err()
	case err := <-pipelineErr:
		sugar.Errorw("Pipeline Run: Received error from a component, initiating shutdown...", zap.Error(err))
		firstErr = err
		cancel()
	}

	sugar.Debug("Pipeline Run: Waiting on WaitGroup...")
	wg.Wait()
	sugar.Info("Pipeline Run: All components finished.")

	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}

// runComponent runs one component loop in a goroutine and reports a non-cancellation error.
func (p *Pipeline) runComponent(
	ctx context.Context,
	wg *sync.WaitGroup,
	errCh chan<- error,
	name string,
	sentinel error,
	run func(context.Context) error,
) {
	defer wg.Done()

	logger := p.logger.With(zap.String("component", name))
	logger.Debug("Starting component goroutine...")
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Component exited with error", zap.Error(err))
		errCh <- fmt.Errorf("%w: %w", sentinel, err)
	} else if err == nil {
		logger.Debug("Component goroutine finished normally")
	} else {
		logger.Debug("Component goroutine cancelled gracefully")
	}
}

// Close stops acquisition and releases the transport.
func (p *Pipeline) Close() error {
	p.logger.Debug("Pipeline Close called")
	stopErr := p.acquirer.Stop(context.Background())
	return errors.Join(stopErr, p.acquirer.Close())
}
