package acquisition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartlens_samples_acquired_total",
			Help: "Total number of samples appended to the sample buffer.",
		},
		[]string{"source"},
	)
	samplesMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartlens_samples_malformed_total",
			Help: "Total number of transport tokens that failed numeric parsing.",
		},
	)
	transportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartlens_transport_errors_total",
			Help: "Total number of transport failures by operation.",
		},
		[]string{"operation"}, // open, read, send, close
	)
	acquisitionEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartlens_acquisition_enabled",
			Help: "1 while acquisition is enabled, 0 otherwise.",
		},
	)
)
