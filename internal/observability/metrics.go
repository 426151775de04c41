// Package observability holds the Prometheus instruments and the tracer
// setup shared by the turn pipeline, the job runner and the gateway.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
	TurnStages     *prometheus.HistogramVec
	JobRuns        *prometheus.CounterVec
	LockWait       prometheus.Histogram
	WriteScopes    *prometheus.CounterVec
	CursorsClosed  prometheus.Counter
}

// NewMetrics registers the instruments on reg. A nil reg uses the default
// registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live learner sessions.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		TurnStages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_duration_ms",
			Help:      "Duration of each turn stage in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job runs by kind and result.",
		}, []string{"kind", "result"}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_lock_wait_ms",
			Help:      "Time spent waiting for the write lock in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500, 1000},
		}),
		WriteScopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_scopes_total",
			Help:      "Finished write scopes by result.",
		}, []string{"result"}),
		CursorsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_cursors_closed_total",
			Help:      "Cursors closed inside write scopes.",
		}),
	}
}

// ObserveStage records how long a turn stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.TurnStages.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) TurnFinished(outcome string) {
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobFinished(kind, result string) {
	m.JobRuns.WithLabelValues(kind, result).Inc()
}

// MetricsHandler serves the instruments registered on gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
