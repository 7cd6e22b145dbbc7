package estimator

import (
	"time"

	"github.com/sanspareilsmyn/heartlens/internal/buffer"
)

// Window is the read side of a sample buffer.
type Window interface {
	Len() int
	LatestTime() (float64, bool)
	Snapshot() buffer.Snapshot
}

// Config holds the estimator tuning parameters.
type Config struct {
	MaxDataLength        int
	SamplingInterval     time.Duration
	DataProportion       float64
	CalculationDelay     time.Duration
	RateHistoryMaxLength int
}

// Estimate is the result of one Analyze call.
// A nil rate means there is not enough history yet.
type Estimate struct {
	SpectralBPM *float64
	OutlierBPM  *float64
	// Recomputed is true when this call ran a new spectral and outlier pass.
	Recomputed bool
	// AnalysisTime is the buffer time of the latest recomputation.
	AnalysisTime float64
}

// SpectralBin is one non-DC bin of a magnitude spectrum.
type SpectralBin struct {
	Magnitude float64 `json:"magnitude"`
	Frequency float64 `json:"frequency_hz"`
}

// SpectralSnapshot is the whole DC-less spectrum of one analysis pass.
type SpectralSnapshot []SpectralBin

// Frequencies returns the frequency axis of the snapshot.
func (s SpectralSnapshot) Frequencies() []float64 {
	out := make([]float64, len(s))
	for i, bin := range s {
		out[i] = bin.Frequency
	}
	return out
}

// Magnitudes returns the magnitude column of the snapshot.
func (s SpectralSnapshot) Magnitudes() []float64 {
	out := make([]float64, len(s))
	for i, bin := range s {
		out[i] = bin.Magnitude
	}
	return out
}

// SpectralHistory holds the rolling spectral snapshots and the buffer time each was computed at.
// Times and Snapshots always have equal length.
type SpectralHistory struct {
	Times     []float64
	Snapshots []SpectralSnapshot
}

type spectralEntry struct {
	time     float64
	snapshot SpectralSnapshot
}
