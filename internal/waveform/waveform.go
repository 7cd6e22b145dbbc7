// Package waveform provides synthetic signal functions used in place of a device.
package waveform

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

const (
	KindPeriodic = "periodic"
	KindECG      = "ecg"
)

var ErrUnknownWaveform = errors.New("unknown waveform")

// Sinusoid is amplitude * sin(2*pi*f*t + phase).
type Sinusoid struct {
	Amplitude   float64
	FrequencyHz float64
	PhaseRad    float64
}

func (s Sinusoid) At(t float64) float64 {
	return s.Amplitude * math.Sin(2*math.Pi*s.FrequencyHz*t+s.PhaseRad)
}

// Params configures the generators. NewPeriodic uses every field as given, so
// a zero Params yields a flat zero signal; start from DefaultParams instead.
// NewECG reads only HeartRateBPM, Dominant.Amplitude and the noise fields,
// falling back to 72 BPM and unit amplitude when those are zero.
type Params struct {
	Dominant     Sinusoid
	Interference Sinusoid
	NoiseMean    float64
	NoiseStdDev  float64
	HeartRateBPM float64
	Seed         int64
}

// DefaultParams returns a 1 Hz dominant wave with 25 Hz interference and mild gaussian noise.
func DefaultParams() Params {
	return Params{
		Dominant:     Sinusoid{Amplitude: 5.0, FrequencyHz: 1.0, PhaseRad: 0.5},
		Interference: Sinusoid{Amplitude: 0.7, FrequencyHz: 25.0},
		NoiseStdDev:  0.15,
		HeartRateBPM: 72,
		Seed:         1,
	}
}

// New returns the signal function for kind.
func New(kind string, p Params) (func(float64) float64, error) {
	switch kind {
	case KindPeriodic, "":
		return NewPeriodic(p).At, nil
	case KindECG:
		return NewECG(p).At, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWaveform, kind)
	}
}

// noise is a gaussian source safe for use from several goroutines.
type noise struct {
	mu     sync.Mutex
	rng    *rand.Rand
	mean   float64
	stdDev float64
}

func newNoise(seed int64, mean, stdDev float64) *noise {
	return &noise{rng: rand.New(rand.NewSource(seed)), mean: mean, stdDev: stdDev}
}

func (n *noise) next() float64 {
	if n.stdDev == 0 {
		return n.mean
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mean + n.rng.NormFloat64()*n.stdDev
}

// Periodic is a dominant sinusoid plus an interfering sinusoid plus gaussian noise.
type Periodic struct {
	dominant     Sinusoid
	interference Sinusoid
	noise        *noise
}

func NewPeriodic(p Params) *Periodic {
	return &Periodic{
		dominant:     p.Dominant,
		interference: p.Interference,
		noise:        newNoise(p.Seed, p.NoiseMean, p.NoiseStdDev),
	}
}

func (p *Periodic) At(t float64) float64 {
	return p.dominant.At(t) + p.interference.At(t) + p.noise.next()
}

// ECG sums gaussian P, Q, R, S and T waves over a slow baseline, one beat per cycle.
// It is a visual stand-in, not a physiological model.
type ECG struct {
	beatHz    float64
	amplitude float64
	noise     *noise
}

func NewECG(p Params) *ECG {
	bpm := p.HeartRateBPM
	if bpm <= 0 {
		bpm = 72
	}
	amplitude := p.Dominant.Amplitude
	if amplitude == 0 {
		amplitude = 1
	}
	return &ECG{
		beatHz:    bpm / 60,
		amplitude: amplitude,
		noise:     newNoise(p.Seed, p.NoiseMean, p.NoiseStdDev),
	}
}

func (e *ECG) At(t float64) float64 {
	phase := fract(t * e.beatHz)

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*t)
	p := 0.08 * gauss(phase, 0.18, 0.03)
	q := -0.12 * gauss(phase, 0.30, 0.01)
	r := 1.00 * gauss(phase, 0.32, 0.008)
	s := -0.25 * gauss(phase, 0.35, 0.012)
	tw := 0.25 * gauss(phase, 0.60, 0.06)

	return e.amplitude*(baseline+p+q+r+s+tw) + e.noise.next()
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
