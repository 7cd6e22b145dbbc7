package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RestartPolicy decides what happens to buffered samples when acquisition restarts.
type RestartPolicy string

const (
	// RestartClear drops buffered samples and estimator history on restart.
	RestartClear RestartPolicy = "clear"
	// RestartKeep keeps buffered samples; elapsed time resumes at the last buffered time.
	RestartKeep RestartPolicy = "keep"
)

// Sink receives acquired samples.
type Sink interface {
	Append(t, v float64)
	LatestTime() (float64, bool)
	Clear()
}

// Config holds the acquisition settings.
type Config struct {
	SamplingInterval time.Duration
	RestartPolicy    RestartPolicy
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithTransport makes the Acquirer open a transport at construction.
func WithTransport(open OpenFunc) Option {
	return func(a *Acquirer) { a.open = open }
}

// WithClock replaces the wall clock and the pacing sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(a *Acquirer) {
		a.now = now
		a.sleep = sleep
	}
}

// WithRestartHook registers fn to run when a restart clears the buffer.
func WithRestartHook(fn func()) Option {
	return func(a *Acquirer) { a.onRestart = fn }
}

// Acquirer pulls one sample per Step from its source and appends it to the sink.
type Acquirer struct {
	sink      Sink
	cfg       Config
	logger    *zap.Logger
	open      OpenFunc
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	onRestart func()
	wake      chan struct{}

	mu         sync.Mutex
	src        source
	openErr    error
	enabled    bool
	epoch      time.Time
	epochSet   bool
	offset     float64
	generation uint64
}

// New creates a disabled Acquirer. When a transport is configured it is opened
// here; failure to open is logged and leaves the Acquirer without a source, so
// a signal function must be set before acquiring.
func New(ctx context.Context, sink Sink, cfg Config, logger *zap.Logger, opts ...Option) *Acquirer {
	if cfg.RestartPolicy == "" {
		cfg.RestartPolicy = RestartClear
	}
	a := &Acquirer{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.open != nil {
		t, err := a.open(ctx)
		if err != nil {
			a.openErr = fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
			transportErrors.WithLabelValues("open").Inc()
			logger.Warn("Transport unavailable, a signal function is required", zap.Error(a.openErr))
		} else {
			a.src = transportSource{transport: t}
			logger.Info("Transport opened")
		}
	}

	logger.Info("Acquirer initialized",
		zap.Duration("sampling_interval", cfg.SamplingInterval),
		zap.String("restart_policy", string(cfg.RestartPolicy)),
		zap.String("source", a.SourceKind()),
	)
	return a
}

// TransportErr returns the error that prevented the transport from opening, if any.
func (a *Acquirer) TransportErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openErr
}

// SetSignalFunction selects fn as the source. It fails with
// ErrConfigurationConflict while a transport is active and keeps the transport.
func (a *Acquirer) SetSignalFunction(fn SignalFunc) error {
	if fn == nil {
		return ErrNilSignalFunction
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.src.(transportSource); ok {
		return ErrConfigurationConflict
	}
	a.src = signalSource{fn: fn}
	a.logger.Info("Signal function configured")
	return nil
}

// SourceKind reports "transport", "signal" or "none".
func (a *Acquirer) SourceKind() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.src == nil {
		return "none"
	}
	return a.src.kind()
}

func (a *Acquirer) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Start enables acquisition. Starting from stopped opens a new session with a
// fresh epoch and applies the restart policy.
func (a *Acquirer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = true
	a.generation++
	a.epochSet = false

	switch a.cfg.RestartPolicy {
	case RestartKeep:
		a.offset = 0
		if latest, ok := a.sink.LatestTime(); ok {
			a.offset = latest
		}
	default:
		a.offset = 0
		a.sink.Clear()
		if a.onRestart != nil {
			a.onRestart()
		}
	}
	t := a.transport()
	generation := a.generation
	a.mu.Unlock()

	acquisitionEnabled.Set(1)
	a.logger.Info("Acquisition started", zap.Uint64("session", generation))

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return a.command(ctx, t, CommandStart)
}

// Stop disables acquisition. A sample in flight is discarded.
func (a *Acquirer) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = false
	t := a.transport()
	a.mu.Unlock()

	acquisitionEnabled.Set(0)
	a.logger.Info("Acquisition stopped")
	return a.command(ctx, t, CommandStop)
}

// Toggle flips acquisition and returns the new state. The state changes even
// when the transport command fails.
func (a *Acquirer) Toggle(ctx context.Context) (bool, error) {
	if a.Enabled() {
		return false, a.Stop(ctx)
	}
	return true, a.Start(ctx)
}

// transport must be called with the lock held.
func (a *Acquirer) transport() Transport {
	if ts, ok := a.src.(transportSource); ok {
		return ts.transport
	}
	return nil
}

func (a *Acquirer) command(ctx context.Context, t Transport, cmd Command) error {
	if t == nil {
		return nil
	}
	if err := t.Send(ctx, cmd); err != nil {
		transportErrors.WithLabelValues("send").Inc()
		a.logger.Warn("Failed to send transport command", zap.String("command", string(cmd)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return nil
}

// Step acquires at most one sample. It is a no-op while disabled. Transport
// and parse failures are absorbed; only a missing source is returned.
func (a *Acquirer) Step(ctx context.Context) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	src := a.src
	if src == nil {
		a.mu.Unlock()
		return ErrNoSourceConfigured
	}
	if !a.epochSet {
		a.epoch = a.now()
		a.epochSet = true
	}
	generation := a.generation
	epoch, offset := a.epoch, a.offset
	a.mu.Unlock()

	var value float64
	switch s := src.(type) {
	case transportSource:
		token, err := s.transport.ReadToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			transportErrors.WithLabelValues("read").Inc()
			a.logger.Warn("Transport read failed, skipping cycle", zap.Error(err))
			return nil
		}
		if token == "" {
			return nil
		}
		v, err := ParseToken(token)
		if err != nil {
			samplesMalformed.Inc()
			a.logger.Debug("Skipping malformed sample", zap.String("token", token), zap.Error(err))
			return nil
		}
		value = v

	case signalSource:
		value = s.fn(a.now().Sub(epoch).Seconds() + offset)
		if err := a.sleep(ctx, a.cfg.SamplingInterval); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled || a.generation != generation {
		a.logger.Debug("Discarding sample acquired across a stop", zap.Float64("value", value))
		return nil
	}
	elapsed := a.now().Sub(a.epoch).Seconds() + a.offset
	a.sink.Append(elapsed, value)
	samplesAcquired.WithLabelValues(src.kind()).Inc()
	return nil
}

// Run calls Step until ctx is cancelled, idling while acquisition is disabled.
// It returns ErrNoSourceConfigured if acquisition is enabled without a source.
func (a *Acquirer) Run(ctx context.Context) error {
	sugar := a.logger.Sugar()
	sugar.Info("Starting acquisition loop...")
	defer sugar.Info("Acquisition loop stopped.")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !a.Enabled() {
			select {
			case <-a.wake:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := a.Step(ctx); err != nil {
			if errors.Is(err, ErrNoSourceConfigured) {
				sugar.Errorw("Acquisition enabled without a source", zap.Error(err))
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sugar.Warnw("Acquisition step failed", zap.Error(err))
		}
	}
}

// Close releases the transport, if one is active.
func (a *Acquirer) Close() error {
	a.mu.Lock()
	t := a.transport()
	a.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Close(); err != nil {
		transportErrors.WithLabelValues("close").Inc()
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
