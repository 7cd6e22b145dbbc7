package estimator

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sanspareilsmyn/heartlens/internal/buffer"
)

// outlierSigmas is the deviation, in standard deviations, above which a sample counts as a beat.
const outlierSigmas = 3.0

// RateEstimator derives heart rate from a sample window with a spectral
// and an outlier counting method, smoothing each over a rolling history.
type RateEstimator struct {
	cfg                 Config
	windowLen           int
	spectralHistoryLen  int
	calculationDelaySec float64
	logger              *zap.Logger

	mu               sync.Mutex
	fft              *fourier.FFT
	coeffs           []complex128
	computed         bool
	lastAnalysisTime float64
	spectralRates    deque.Deque[float64]
	outlierRates     deque.Deque[float64]
	spectra          deque.Deque[spectralEntry]
}

// SpectralHistoryMaxLength returns the number of analysis passes that fit
// into one full buffer refill: floor(bufferSpan / delay) + 1.
func SpectralHistoryMaxLength(maxDataLength int, samplingInterval, delay time.Duration) int {
	if delay <= 0 {
		return 1
	}
	span := time.Duration(maxDataLength) * samplingInterval
	return int(span/delay) + 1
}

// New validates cfg and creates an estimator with empty histories.
func New(cfg Config, logger *zap.Logger) (*RateEstimator, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	windowLen := analysisWindowLen(cfg)
	if windowLen < 2 {
		return nil, ErrAnalysisWindowTooShort
	}

	e := &RateEstimator{
		cfg:                 cfg,
		windowLen:           windowLen,
		spectralHistoryLen:  SpectralHistoryMaxLength(cfg.MaxDataLength, cfg.SamplingInterval, cfg.CalculationDelay),
		calculationDelaySec: cfg.CalculationDelay.Seconds(),
		logger:              logger,
		fft:                 fourier.NewFFT(windowLen),
	}

	logger.Info("Rate estimator initialized",
		zap.Int("max_data_length", cfg.MaxDataLength),
		zap.Int("analysis_window", windowLen),
		zap.Duration("calculation_delay", cfg.CalculationDelay),
		zap.Int("rate_history_max_length", cfg.RateHistoryMaxLength),
		zap.Int("spectral_history_max_length", e.spectralHistoryLen),
	)
	return e, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.MaxDataLength <= 0:
		return ErrInvalidMaxDataLength
	case cfg.SamplingInterval <= 0:
		return ErrInvalidSamplingInterval
	case cfg.DataProportion <= 0 || cfg.DataProportion > 1:
		return ErrInvalidDataProportion
	case cfg.CalculationDelay <= 0:
		return ErrInvalidCalculationDelay
	case cfg.RateHistoryMaxLength <= 0:
		return ErrInvalidRateHistory
	}
	return nil
}

// analysisWindowLen is the sample count both the precondition and the trailing slice use.
func analysisWindowLen(cfg Config) int {
	return int(math.Ceil(cfg.DataProportion * float64(cfg.MaxDataLength)))
}

// WindowLen returns the number of trailing samples the spectral path analyses.
func (e *RateEstimator) WindowLen() int {
	return e.windowLen
}

// SpectralHistoryLen returns the derived spectral history capacity.
func (e *RateEstimator) SpectralHistoryLen() int {
	return e.spectralHistoryLen
}

// Analyze inspects the window and, when the calculation delay has elapsed in
// buffer time, runs one spectral and one outlier pass. It returns the rolling
// means, or nil rates while the window holds too few samples.
func (e *RateEstimator) Analyze(w Window) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w.Len() < e.windowLen {
		return Estimate{}
	}
	latest, ok := w.LatestTime()
	if !ok {
		return Estimate{}
	}

	// Buffer time moves backwards when a session restarts with a fresh epoch.
	if e.computed && latest < e.lastAnalysisTime {
		e.logger.Debug("Buffer time moved backwards, re-arming analysis gate",
			zap.Float64("latest", latest),
			zap.Float64("last_analysis_time", e.lastAnalysisTime),
		)
		e.computed = false
	}

	if e.computed && latest-e.lastAnalysisTime <= e.calculationDelaySec {
		return e.current(false)
	}

	snap := w.Snapshot()
	if snap.Len() < e.windowLen {
		return Estimate{}
	}
	now := snap.Times[snap.Len()-1]

	e.analyzeSpectrum(snap, now)
	e.analyzeOutliers(snap)

	e.lastAnalysisTime = now
	e.computed = true
	return e.current(true)
}

// analyzeSpectrum runs the real FFT over the trailing window and records the dominant frequency.
func (e *RateEstimator) analyzeSpectrum(snap buffer.Snapshot, now float64) {
	start := snap.Len() - e.windowLen
	times := snap.Times[start:]
	values := snap.Values[start:]

	binDuration := (times[len(times)-1] - times[0]) / float64(e.windowLen)
	if binDuration <= 0 {
		e.logger.Debug("Skipping spectral pass, analysis window has no time span",
			zap.Float64("first", times[0]),
			zap.Float64("last", times[len(times)-1]),
		)
		return
	}

	e.coeffs = e.fft.Coefficients(e.coeffs, values)

	spectrum := make(SpectralSnapshot, 0, len(e.coeffs)-1)
	magnitudes := make([]float64, 0, len(e.coeffs)-1)
	for k := 1; k < len(e.coeffs); k++ {
		mag := cmplx.Abs(e.coeffs[k])
		spectrum = append(spectrum, SpectralBin{
			Magnitude: mag,
			Frequency: e.fft.Freq(k) / binDuration,
		})
		magnitudes = append(magnitudes, mag)
	}
	if len(spectrum) == 0 {
		return
	}

	peak := floats.MaxIdx(magnitudes)
	bpm := spectrum[peak].Frequency * 60

	pushBounded(&e.spectra, spectralEntry{time: now, snapshot: spectrum}, e.spectralHistoryLen)
	pushBounded(&e.spectralRates, bpm, e.cfg.RateHistoryMaxLength)

	e.logger.Debug("Spectral pass complete",
		zap.Float64("time", now),
		zap.Float64("peak_hz", spectrum[peak].Frequency),
		zap.Float64("bpm", bpm),
		zap.Float64("bin_duration", binDuration),
	)
}

// analyzeOutliers counts samples beyond outlierSigmas standard deviations over the whole buffer.
func (e *RateEstimator) analyzeOutliers(snap buffer.Snapshot) {
	span := snap.Span()
	if span <= 0 {
		e.logger.Debug("Skipping outlier pass, buffer has no time span")
		return
	}

	mean, std := stat.MeanStdDev(snap.Values, nil)

	count := 0
	// NaN and zero deviation both leave count at 0.
	if std > 0 {
		limit := outlierSigmas * std
		for _, v := range snap.Values {
			if math.Abs(v-mean) > limit {
				count++
			}
		}
	}

	bpm := float64(count) / span * 60
	pushBounded(&e.outlierRates, bpm, e.cfg.RateHistoryMaxLength)

	e.logger.Debug("Outlier pass complete",
		zap.Int("outliers", count),
		zap.Float64("span_s", span),
		zap.Float64("mean", mean),
		zap.Float64("stddev", std),
		zap.Float64("bpm", bpm),
	)
}

// current must be called with the lock held.
func (e *RateEstimator) current(recomputed bool) Estimate {
	return Estimate{
		SpectralBPM:  rollingMean(&e.spectralRates),
		OutlierBPM:   rollingMean(&e.outlierRates),
		Recomputed:   recomputed,
		AnalysisTime: e.lastAnalysisTime,
	}
}

// SpectralHistory copies the rolling spectral snapshots, oldest first.
func (e *RateEstimator) SpectralHistory() SpectralHistory {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := SpectralHistory{
		Times:     make([]float64, 0, e.spectra.Len()),
		Snapshots: make([]SpectralSnapshot, 0, e.spectra.Len()),
	}
	for i := 0; i < e.spectra.Len(); i++ {
		entry := e.spectra.At(i)
		h.Times = append(h.Times, entry.time)
		h.Snapshots = append(h.Snapshots, entry.snapshot)
	}
	return h
}

// RateHistories copies the raw instantaneous estimates, oldest first.
func (e *RateEstimator) RateHistories() (spectral, outlier []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toSlice(&e.spectralRates), toSlice(&e.outlierRates)
}

// Reset clears every history and re-arms the analysis gate.
func (e *RateEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.spectralRates.Clear()
	e.outlierRates.Clear()
	e.spectra.Clear()
	e.computed = false
	e.lastAnalysisTime = 0
}

func pushBounded[T any](q *deque.Deque[T], v T, maxLen int) {
	q.PushBack(v)
	for q.Len() > maxLen {
		q.PopFront()
	}
}

func toSlice(q *deque.Deque[float64]) []float64 {
	out := make([]float64, q.Len())
	for i := range out {
		out[i] = q.At(i)
	}
	return out
}

func rollingMean(q *deque.Deque[float64]) *float64 {
	if q.Len() == 0 {
		return nil
	}
	m := stat.Mean(toSlice(q), nil)
	return &m
}
