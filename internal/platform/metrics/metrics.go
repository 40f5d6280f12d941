// Package metrics exposes Prometheus metrics for skill execution and
// pipeline outcomes on a registry owned by the application.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
)

// Skill outcomes recorded in the outcome label.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
)

// Metrics holds the application collectors.
type Metrics struct {
	registry      *prometheus.Registry
	skillDuration *prometheus.HistogramVec
	pipelineRuns  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		skillDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tiptoro",
			Name:      "skill_duration_seconds",
			Help:      "Duration of skill handler executions.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"skill", "outcome"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiptoro",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline invocations by the status they halted in.",
		}, []string{"pipeline", "status"}),
	}
	m.registry.MustRegister(
		m.skillDuration,
		m.pipelineRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Instrument wraps h so every execution is timed under skill. Panics are
// recorded and propagated.
func (m *Metrics) Instrument(skill string, h gateway.Handler) gateway.Handler {
	return gateway.HandlerFunc(func(ctx context.Context, tc *gateway.TaskContext) (err error) {
		start := time.Now()
		outcome := OutcomePanic
		defer func() {
			m.skillDuration.WithLabelValues(skill, outcome).Observe(time.Since(start).Seconds())
		}()

		err = h.Handle(ctx, tc)
		if err != nil {
			outcome = OutcomeError
		} else {
			outcome = OutcomeSuccess
		}
		return err
	})
}

// ObservePipeline counts one pipeline invocation.
func (m *Metrics) ObservePipeline(pipeline string, status gateway.TaskStatus) {
	m.pipelineRuns.WithLabelValues(pipeline, string(status)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
