package message

import (
	"time"

	"github.com/sanspareilsmyn/heartlens/internal/buffer"
	"github.com/sanspareilsmyn/heartlens/internal/estimator"
)

// Frame is everything a display needs for one render tick.
type Frame struct {
	Timestamp   time.Time   `json:"timestamp"`
	Enabled     bool        `json:"enabled"`
	Times       []float64   `json:"times"`
	Values      []float64   `json:"values"`
	SpectralBPM *float64    `json:"spectral_bpm"` // null until enough history
	OutlierBPM  *float64    `json:"outlier_bpm"`  // null until enough history
	Spectrogram Spectrogram `json:"spectrogram"`
}

// Spectrogram is the rolling spectral history laid out for a heat map:
// Magnitudes[i] is the spectrum computed at Times[i] over Frequencies[i].
// Each snapshot keeps its own axis because the analysed span varies.
type Spectrogram struct {
	Times       []float64   `json:"times"`
	Frequencies [][]float64 `json:"frequencies_hz"`
	Magnitudes  [][]float64 `json:"magnitudes"`
}

// BuildFrame assembles a Frame.
func BuildFrame(snap buffer.Snapshot, est estimator.Estimate, history estimator.SpectralHistory, enabled bool, now time.Time) Frame {
	sg := Spectrogram{
		Times:       history.Times,
		Frequencies: make([][]float64, 0, len(history.Snapshots)),
		Magnitudes:  make([][]float64, 0, len(history.Snapshots)),
	}
	for _, s := range history.Snapshots {
		sg.Frequencies = append(sg.Frequencies, s.Frequencies())
		sg.Magnitudes = append(sg.Magnitudes, s.Magnitudes())
	}
	if sg.Times == nil {
		sg.Times = []float64{}
	}

	return Frame{
		Timestamp:   now,
		Enabled:     enabled,
		Times:       nonNil(snap.Times),
		Values:      nonNil(snap.Values),
		SpectralBPM: est.SpectralBPM,
		OutlierBPM:  est.OutlierBPM,
		Spectrogram: sg,
	}
}

func nonNil(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}
