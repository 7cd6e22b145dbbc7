package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/estimator"
)

const (
	estimatorSpectral = "spectral"
	estimatorOutlier  = "outlier"
)

var (
	heartRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heartlens_heart_rate_bpm",
			Help: "Rolling mean heart rate per estimator; 0 until enough history.",
		},
		[]string{"estimator"}, // spectral, outlier
	)
	bufferSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heartlens_buffer_samples",
		Help: "Number of samples currently held in the sample buffer.",
	})
	recomputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartlens_estimate_recomputations_total",
		Help: "Number of spectral and outlier analysis passes.",
	})
	bpmThresholdViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartlens_bpm_threshold_violations_total",
			Help: "Recomputed estimates outside the configured BPM bounds.",
		},
		[]string{"estimator", "comparison"},
	)
)

// Reporter exports estimates as metrics and checks them against the configured BPM bounds.
type Reporter struct {
	alerts config.AlertsConfig
	logger *zap.Logger
}

func NewReporter(alerts config.AlertsConfig, logger *zap.Logger) *Reporter {
	logger.Debug("Reporter initialized",
		zap.Bool("bpm_min_set", alerts.BPMMin != nil),
		zap.Bool("bpm_max_set", alerts.BPMMax != nil),
	)
	return &Reporter{alerts: alerts, logger: logger}
}

// Report updates the gauges. Bounds are only checked when est was recomputed,
// so one analysis pass counts at most one violation per estimator.
func (r *Reporter) Report(est estimator.Estimate, bufferLen int) {
	bufferSamples.Set(float64(bufferLen))
	setRate(estimatorSpectral, est.SpectralBPM)
	setRate(estimatorOutlier, est.OutlierBPM)

	if !est.Recomputed {
		return
	}
	recomputations.Inc()

	sugar := r.logger.Sugar()
	r.checkBounds(sugar, estimatorSpectral, est.AnalysisTime, est.SpectralBPM)
	r.checkBounds(sugar, estimatorOutlier, est.AnalysisTime, est.OutlierBPM)

	fields := []interface{}{
		zap.Float64("analysis_time", est.AnalysisTime),
		zap.Int("buffer_samples", bufferLen),
	}
	if est.SpectralBPM != nil {
		fields = append(fields, zap.Float64("spectral_bpm", *est.SpectralBPM))
	}
	if est.OutlierBPM != nil {
		fields = append(fields, zap.Float64("outlier_bpm", *est.OutlierBPM))
	}
	sugar.Debugw("Heart rate estimate updated", fields...)
}

func setRate(name string, bpm *float64) {
	if bpm == nil {
		heartRate.WithLabelValues(name).Set(0)
		return
	}
	heartRate.WithLabelValues(name).Set(*bpm)
}

func (r *Reporter) checkBounds(sugar *zap.SugaredLogger, name string, analysisTime float64, bpm *float64) {
	if bpm == nil {
		return
	}
	if r.alerts.BPMMin != nil && *bpm < *r.alerts.BPMMin {
		sugar.Warnw("Heart rate below minimum",
			zap.String("estimator", name),
			zap.Float64("analysis_time", analysisTime),
			zap.Float64("actual", *bpm),
			zap.Float64("threshold", *r.alerts.BPMMin),
			zap.String("comparison", "<"),
		)
		bpmThresholdViolations.WithLabelValues(name, "<").Inc()
	}
	if r.alerts.BPMMax != nil && *bpm > *r.alerts.BPMMax {
		sugar.Warnw("Heart rate above maximum",
			zap.String("estimator", name),
			zap.Float64("analysis_time", analysisTime),
			zap.Float64("actual", *bpm),
			zap.Float64("threshold", *r.alerts.BPMMax),
			zap.String("comparison", ">"),
		)
		bpmThresholdViolations.WithLabelValues(name, ">").Inc()
	}
}
