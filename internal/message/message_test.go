package message

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanspareilsmyn/heartlens/internal/acquisition"
	"github.com/sanspareilsmyn/heartlens/internal/buffer"
	"github.com/sanspareilsmyn/heartlens/internal/estimator"
)

func TestBuildFrameWithoutHistory(t *testing.T) {
	f := BuildFrame(buffer.Snapshot{}, estimator.Estimate{}, estimator.SpectralHistory{}, false, time.Unix(0, 0))

	data, err := EncodeFrame(f)
	require.NoError(t, err)

	js := string(data)
	assert.True(t, strings.Contains(js, `"spectral_bpm":null`), js)
	assert.True(t, strings.Contains(js, `"outlier_bpm":null`), js)
	assert.True(t, strings.Contains(js, `"times":[]`), js)
	assert.True(t, strings.Contains(js, `"magnitudes":[]`), js)
}

func TestBuildFrameLaysOutSpectrogram(t *testing.T) {
	bpm := 72.0
	history := estimator.SpectralHistory{
		Times: []float64{1.0, 1.5},
		Snapshots: []estimator.SpectralSnapshot{
			{{Magnitude: 1, Frequency: 0.5}, {Magnitude: 4, Frequency: 1.0}},
			{{Magnitude: 2, Frequency: 0.5}, {Magnitude: 3, Frequency: 1.0}},
		},
	}
	snap := buffer.Snapshot{Times: []float64{0, 0.004}, Values: []float64{1, 2}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f := BuildFrame(snap, estimator.Estimate{SpectralBPM: &bpm}, history, true, now)
	assert.Equal(t, [][]float64{{0.5, 1.0}, {0.5, 1.0}}, f.Spectrogram.Frequencies)
	assert.Equal(t, [][]float64{{1, 4}, {2, 3}}, f.Spectrogram.Magnitudes)

	data, err := EncodeFrame(f)
	require.NoError(t, err)
	decoded, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.True(t, decoded.Enabled)
	assert.True(t, now.Equal(decoded.Timestamp))
	require.NotNil(t, decoded.SpectralBPM)
	assert.Equal(t, 72.0, *decoded.SpectralBPM)
	assert.Nil(t, decoded.OutlierBPM)
	assert.Equal(t, snap.Values, decoded.Values)
}

func TestBuildFrameKeepsEachSnapshotAxis(t *testing.T) {
	// A longer span yields a finer resolution, so older columns differ.
	history := estimator.SpectralHistory{
		Times: []float64{1.0, 2.0},
		Snapshots: []estimator.SpectralSnapshot{
			{{Magnitude: 1, Frequency: 1.0}, {Magnitude: 2, Frequency: 2.0}},
			{{Magnitude: 3, Frequency: 0.5}, {Magnitude: 4, Frequency: 1.0}, {Magnitude: 5, Frequency: 1.5}},
		},
	}

	f := BuildFrame(buffer.Snapshot{}, estimator.Estimate{}, history, true, time.Unix(0, 0))
	sg := f.Spectrogram
	require.Len(t, sg.Frequencies, len(sg.Magnitudes))
	for i := range sg.Magnitudes {
		assert.Len(t, sg.Frequencies[i], len(sg.Magnitudes[i]), "column %d", i)
	}
	assert.Equal(t, []float64{1.0, 2.0}, sg.Frequencies[0])
	assert.Equal(t, []float64{0.5, 1.0, 1.5}, sg.Frequencies[1])

	data, err := EncodeFrame(f)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"frequencies_hz":[[1,2],[0.5,1,1.5]]`), string(data))
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte("{"))
	assert.ErrorIs(t, err, ErrJSONUnmarshalFailed)
}

func TestFormatTokenParsesBack(t *testing.T) {
	for _, v := range []float64{0, -3.25, 512, 1e-7} {
		got, err := acquisition.ParseToken(FormatToken(v) + "\n")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
