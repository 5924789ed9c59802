// Package monitoring exposes Prometheus metrics for the pipeline and the
// HTTP surface.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	StageRuns      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	ModelsTrained  *prometheus.CounterVec
	Predictions    prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		StageRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automl",
			Name:      "pipeline_stage_runs_total",
			Help:      "Pipeline stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "automl",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage wall time by stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		ModelsTrained: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automl",
			Name:      "models_trained_total",
			Help:      "Trained model candidates by model id and outcome.",
		}, []string{"model_id", "outcome"}),
		Predictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "automl",
			Name:      "predictions_total",
			Help:      "Rows predicted across all projects.",
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automl",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "automl",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObserveStage records one stage run. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.StageRuns.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveModel records one trained candidate. Safe on a nil receiver.
func (m *Metrics) ObserveModel(modelID string, completed bool) {
	if m == nil {
		return
	}
	outcome := "completed"
	if !completed {
		outcome = "failed"
	}
	m.ModelsTrained.WithLabelValues(modelID, outcome).Inc()
}

// ObservePredictions counts predicted rows. Safe on a nil receiver.
func (m *Metrics) ObservePredictions(rows int) {
	if m == nil {
		return
	}
	m.Predictions.Add(float64(rows))
}

// ObserveHTTP records one request. Safe on a nil receiver.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
