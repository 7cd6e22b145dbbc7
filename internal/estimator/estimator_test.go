package estimator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sanspareilsmyn/heartlens/internal/buffer"
)

const step = 0.004

func testConfig() Config {
	return Config{
		MaxDataLength:        1500,
		SamplingInterval:     4 * time.Millisecond,
		DataProportion:       0.5,
		CalculationDelay:     500 * time.Millisecond,
		RateHistoryMaxLength: 5,
	}
}

func newTestEstimator(t *testing.T, cfg Config) *RateEstimator {
	t.Helper()
	e, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

// fill appends n samples of fn continuing from the buffer's latest time.
func fill(b *buffer.SampleBuffer, n int, fn func(t float64) float64) {
	start := 0.0
	if latest, ok := b.LatestTime(); ok {
		start = latest + step
	}
	for i := 0; i < n; i++ {
		tm := start + float64(i)*step
		b.Append(tm, fn(tm))
	}
}

func sine(freqHz float64) func(float64) float64 {
	return func(t float64) float64 {
		return 2 * math.Sin(2*math.Pi*freqHz*t)
	}
}

func TestSpectralHistoryMaxLength(t *testing.T) {
	assert.Equal(t, 13, SpectralHistoryMaxLength(1500, 4*time.Millisecond, 500*time.Millisecond))
	assert.Equal(t, 7, SpectralHistoryMaxLength(300, 20*time.Millisecond, time.Second))
	assert.Equal(t, 1, SpectralHistoryMaxLength(300, 20*time.Millisecond, 0))

	e := newTestEstimator(t, testConfig())
	assert.Equal(t, 13, e.SpectralHistoryLen())
	assert.Equal(t, 750, e.WindowLen())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   error
	}{
		"max length":  {func(c *Config) { c.MaxDataLength = 0 }, ErrInvalidMaxDataLength},
		"interval":    {func(c *Config) { c.SamplingInterval = 0 }, ErrInvalidSamplingInterval},
		"proportion":  {func(c *Config) { c.DataProportion = 1.5 }, ErrInvalidDataProportion},
		"delay":       {func(c *Config) { c.CalculationDelay = -time.Second }, ErrInvalidCalculationDelay},
		"history":     {func(c *Config) { c.RateHistoryMaxLength = 0 }, ErrInvalidRateHistory},
		"tiny window": {func(c *Config) { c.MaxDataLength = 1 }, ErrAnalysisWindowTooShort},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := New(cfg, zaptest.NewLogger(t))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInsufficientHistoryIsAbsent(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)

	fill(b, 749, sine(1))
	est := e.Analyze(b)
	assert.Nil(t, est.SpectralBPM)
	assert.Nil(t, est.OutlierBPM)
	assert.False(t, est.Recomputed)

	fill(b, 1, sine(1))
	est = e.Analyze(b)
	assert.NotNil(t, est.SpectralBPM)
	assert.NotNil(t, est.OutlierBPM)
	assert.True(t, est.Recomputed)
}

func TestSpectralPeakMatchesSinusoid(t *testing.T) {
	for _, freq := range []float64{1.0, 1.5, 2.0} {
		e := newTestEstimator(t, testConfig())
		b := buffer.New(1500)
		fill(b, 750, sine(freq))

		est := e.Analyze(b)
		require.NotNil(t, est.SpectralBPM)

		span := 749 * step
		resolutionBPM := 60 / span
		assert.InDelta(t, freq*60, *est.SpectralBPM, resolutionBPM, "frequency %.2f Hz", freq)
	}
}

func TestSpectralSnapshotExcludesDC(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)
	fill(b, 750, func(t float64) float64 { return 10 + sine(1)(t) })

	e.Analyze(b)
	h := e.SpectralHistory()
	require.Len(t, h.Snapshots, 1)
	require.Len(t, h.Times, 1)

	snap := h.Snapshots[0]
	assert.Len(t, snap, 750/2)
	assert.Greater(t, snap[0].Frequency, 0.0)
	assert.InDelta(t, 749*step, h.Times[0], 1e-9)

	freqs := snap.Frequencies()
	for i := 1; i < len(freqs); i++ {
		assert.Greater(t, freqs[i], freqs[i-1])
	}
	assert.Len(t, snap.Magnitudes(), len(snap))
}

func TestAnalysisGate(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)
	fill(b, 750, sine(1.2))

	first := e.Analyze(b)
	require.True(t, first.Recomputed)

	second := e.Analyze(b)
	assert.False(t, second.Recomputed)
	assert.Equal(t, *first.SpectralBPM, *second.SpectralBPM)
	assert.Equal(t, *first.OutlierBPM, *second.OutlierBPM)

	// 0.4 s of new data stays within the 0.5 s delay.
	fill(b, 100, sine(1.2))
	third := e.Analyze(b)
	assert.False(t, third.Recomputed)
	assert.Equal(t, *first.SpectralBPM, *third.SpectralBPM)

	fill(b, 30, sine(1.2))
	fourth := e.Analyze(b)
	assert.True(t, fourth.Recomputed)

	spectral, outlier := e.RateHistories()
	assert.Len(t, spectral, 2)
	assert.Len(t, outlier, 2)
}

func TestHistoriesStayBounded(t *testing.T) {
	cfg := testConfig()
	e := newTestEstimator(t, cfg)
	b := buffer.New(cfg.MaxDataLength)
	fill(b, 750, sine(1))

	var analysisTimes, spectralPasses, outlierPasses []float64
	for i := 0; i < 40; i++ {
		est := e.Analyze(b)
		require.True(t, est.Recomputed)
		analysisTimes = append(analysisTimes, est.AnalysisTime)

		spectral, outlier := e.RateHistories()
		assert.LessOrEqual(t, len(spectral), cfg.RateHistoryMaxLength)
		assert.LessOrEqual(t, len(outlier), cfg.RateHistoryMaxLength)
		require.NotEmpty(t, spectral)
		require.NotEmpty(t, outlier)
		spectralPasses = append(spectralPasses, spectral[len(spectral)-1])
		outlierPasses = append(outlierPasses, outlier[len(outlier)-1])

		// Reported rates are the means of exactly the retained passes.
		require.NotNil(t, est.SpectralBPM)
		require.NotNil(t, est.OutlierBPM)
		assert.InDelta(t, mean(spectralPasses[max(0, len(spectralPasses)-cfg.RateHistoryMaxLength):]), *est.SpectralBPM, 1e-9)
		assert.InDelta(t, mean(outlierPasses[max(0, len(outlierPasses)-cfg.RateHistoryMaxLength):]), *est.OutlierBPM, 1e-9)

		h := e.SpectralHistory()
		assert.LessOrEqual(t, len(h.Snapshots), e.SpectralHistoryLen())
		assert.Equal(t, len(h.Times), len(h.Snapshots))

		// A drifting rhythm keeps successive passes distinguishable.
		fill(b, 130, sine(1+0.05*float64(i)))
	}

	h := e.SpectralHistory()
	require.Len(t, h.Times, e.SpectralHistoryLen())
	// Oldest first, and exactly the most recent passes.
	assert.Equal(t, analysisTimes[len(analysisTimes)-e.SpectralHistoryLen():], h.Times)

	spectral, outlier := e.RateHistories()
	assert.Equal(t, spectralPasses[len(spectralPasses)-cfg.RateHistoryMaxLength:], spectral)
	assert.Equal(t, outlierPasses[len(outlierPasses)-cfg.RateHistoryMaxLength:], outlier)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func TestConstantSignalHasZeroOutlierRate(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)
	fill(b, 750, func(float64) float64 { return 1 })

	est := e.Analyze(b)
	require.NotNil(t, est.OutlierBPM)
	assert.Equal(t, 0.0, *est.OutlierBPM)
}

func TestOutlierRateCountsSpikes(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)

	// One spike per second over six seconds.
	for i := 0; i < 1500; i++ {
		v := 0.0
		if i%250 == 100 {
			v = 10
		}
		b.Append(float64(i)*step, v)
	}

	est := e.Analyze(b)
	require.NotNil(t, est.OutlierBPM)
	assert.InDelta(t, 6/(1499*step)*60, *est.OutlierBPM, 1e-9)
}

func TestRestartReArmsGate(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)
	fill(b, 1500, sine(1))
	require.True(t, e.Analyze(b).Recomputed)

	// A new session starts its clock from zero.
	b.Clear()
	fill(b, 750, sine(1))
	assert.True(t, e.Analyze(b).Recomputed)
}

func TestReset(t *testing.T) {
	e := newTestEstimator(t, testConfig())
	b := buffer.New(1500)
	fill(b, 750, sine(1))
	e.Analyze(b)

	e.Reset()
	spectral, outlier := e.RateHistories()
	assert.Empty(t, spectral)
	assert.Empty(t, outlier)
	assert.Empty(t, e.SpectralHistory().Snapshots)

	assert.True(t, e.Analyze(b).Recomputed)
}
