package waveform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicWithoutNoise(t *testing.T) {
	p := DefaultParams()
	p.NoiseStdDev = 0
	fn, err := New(KindPeriodic, p)
	require.NoError(t, err)

	want := 5*math.Sin(2*math.Pi*0.3+0.5) + 0.7*math.Sin(2*math.Pi*25*0.3)
	assert.InDelta(t, want, fn(0.3), 1e-12)
}

func TestPeriodicNoiseIsSeeded(t *testing.T) {
	a := NewPeriodic(DefaultParams())
	b := NewPeriodic(DefaultParams())
	for i := 0; i < 10; i++ {
		tm := float64(i) * 0.004
		assert.Equal(t, a.At(tm), b.At(tm))
	}
}

func TestECGPeaksOncePerBeat(t *testing.T) {
	p := Params{HeartRateBPM: 60}
	e := NewECG(p)

	// R wave sits at 32% of each one-second cycle.
	peak := e.At(0.32)
	assert.Greater(t, peak, 0.9)
	assert.InDelta(t, peak, e.At(1.32), 0.1)
	assert.Less(t, e.At(0.9), 0.2)
}

func TestZeroParams(t *testing.T) {
	var p Params

	periodic := NewPeriodic(p)
	for _, tm := range []float64{0, 0.25, 1.7} {
		assert.Zero(t, periodic.At(tm))
	}

	// 72 BPM puts the R wave at 0.32/1.2 s and repeats every 1/1.2 s.
	ecg := NewECG(p)
	peak := ecg.At(0.32 / 1.2)
	assert.Greater(t, peak, 0.9)
	assert.InDelta(t, peak, ecg.At(0.32/1.2+1/1.2), 0.1)
}

func TestUnknownWaveform(t *testing.T) {
	_, err := New("square", DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownWaveform)
}
