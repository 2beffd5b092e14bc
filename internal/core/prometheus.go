package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation and spoilage metrics through a
// prometheus registerer. It fulfills both MetricsRecorder and LossObserver.
type PrometheusMetricsRecorder struct {
	opDuration *prometheus.HistogramVec
	opResults  *prometheus.CounterVec
	lossTotal  *prometheus.CounterVec
	containers prometheus.Gauge
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors. A nil registerer falls back to the default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "silocore_operation_duration_seconds",
			Help:    "Duration of registry service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		opResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silocore_operation_results_total",
			Help: "Service operation outcomes by status.",
		}, []string{"operation", "status"}),
		lossTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silocore_spoilage_loss_total",
			Help: "Quantity removed by expiration, per content type.",
		}, []string{"content_type"}),
		containers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "silocore_active_containers",
			Help: "Number of containers in the active registry.",
		}),
	}
	for _, c := range []prometheus.Collector{r.opDuration, r.opResults, r.lossTotal, r.containers} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
	r.opResults.WithLabelValues(operation, status).Inc()
}

// ObserveLoss accumulates expired quantity per content type.
func (r *PrometheusMetricsRecorder) ObserveLoss(contentType string, quantity float64) {
	if contentType == "" || quantity <= 0 {
		return
	}
	r.lossTotal.WithLabelValues(contentType).Add(quantity)
}

// SetActiveContainers updates the active container gauge.
func (r *PrometheusMetricsRecorder) SetActiveContainers(n int) {
	r.containers.Set(float64(n))
}
