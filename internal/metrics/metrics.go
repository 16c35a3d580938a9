// Package metrics exposes Prometheus metrics for agent invocations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

const namespace = "agents"

// Recorder records invocation counts, durations and execution log failures.
type Recorder struct {
	registry      *prometheus.Registry
	invocations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	logWriteFails *prometheus.CounterVec
}

// NewRecorder creates a recorder on its own registry, with the Go and
// process collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total agent invocations by terminal status.",
		}, []string{"agent", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Agent invocation duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"agent", "status"}),
		logWriteFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_log_failures_total",
			Help:      "Execution log writes that failed and were dropped.",
		}, []string{"agent", "op"}),
	}
	r.registry.MustRegister(
		r.invocations,
		r.duration,
		r.logWriteFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveInvocation records one finished invocation.
func (r *Recorder) ObserveInvocation(agentID string, status domain.ExecutionStatus, elapsed time.Duration) {
	r.invocations.WithLabelValues(agentID, string(status)).Inc()
	r.duration.WithLabelValues(agentID, string(status)).Observe(elapsed.Seconds())
}

// LogWriteFailed records one dropped execution log write.
func (r *Recorder) LogWriteFailed(agentID, op string) {
	r.logWriteFails.WithLabelValues(agentID, op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
