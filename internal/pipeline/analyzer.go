package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/buffer"
	"github.com/sanspareilsmyn/heartlens/internal/estimator"
	"github.com/sanspareilsmyn/heartlens/internal/message"
)

// Publisher receives one frame per render tick.
type Publisher interface {
	Publish(f message.Frame) error
}

// Analyzer drives the estimator at the frame rate and publishes render frames.
type Analyzer struct {
	buf       *buffer.SampleBuffer
	estimator *estimator.RateEstimator
	enabled   func() bool
	reporter  *Reporter
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewAnalyzer(
	buf *buffer.SampleBuffer,
	est *estimator.RateEstimator,
	enabled func() bool,
	reporter *Reporter,
	publisher Publisher,
	interval time.Duration,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		buf:       buf,
		estimator: est,
		enabled:   enabled,
		reporter:  reporter,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Tick runs one analysis pass and publishes the resulting frame.
func (a *Analyzer) Tick() (message.Frame, error) {
	est := a.estimator.Analyze(a.buf)
	a.reporter.Report(est, a.buf.Len())

	frame := message.BuildFrame(a.buf.Snapshot(), est, a.estimator.SpectralHistory(), a.enabled(), a.now())
	return frame, a.publisher.Publish(frame)
}

// Run ticks at the configured interval until ctx is cancelled. Publish
// failures are logged and the loop continues.
func (a *Analyzer) Run(ctx context.Context) error {
	sugar := a.logger.Sugar()
	sugar.Infow("Starting analyzer loop...", "frame_interval", a.interval)
	defer sugar.Info("Analyzer loop stopped.")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.Tick(); err != nil {
				sugar.Warnw("Failed to publish frame", zap.Error(err))
			}
		case <-ctx.Done():
			sugar.Info("Context cancelled, stopping analyzer.")
			return ctx.Err()
		}
	}
}
