// Package observability exposes Prometheus instruments for the
// telemetry pipeline itself.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the history
// pipeline. Every observe method is safe on a nil receiver so callers
// can wire metrics in or leave them out.
type Metrics struct {
	RecordWrites    *prometheus.CounterVec
	QueueDrops      *prometheus.CounterVec
	PendingRequests prometheus.Gauge
	CallDuration    *prometheus.HistogramVec
	Tokens          *prometheus.CounterVec
	Cost            *prometheus.CounterVec
}

// NewMetrics registers the instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, nil)
}

// NewMetricsWith registers the instruments with reg, letting tests use
// an isolated registry. A nil reg falls back to the default registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "agent_history"
	}
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}
	return &Metrics{
		RecordWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_writes_total",
			Help:      "History record writes by type and status.",
		}, []string{"record_type", "status"}),
		QueueDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Records dropped because the writer queue was full.",
		}, []string{"record_type"}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "LLM calls awaiting their after-call or error hook.",
		}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Observed LLM call latency by provider and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "status"}),
		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Provider-confirmed tokens by provider and kind.",
		}, []string{"provider", "kind"}),
		Cost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Accumulated LLM spend by provider and model.",
		}, []string{"provider", "model"}),
	}
}

// ObserveWrite counts one attempted record write.
func (m *Metrics) ObserveWrite(recordType string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.RecordWrites.WithLabelValues(recordType, status).Inc()
}

// ObserveDrop counts one record rejected by a full writer queue.
func (m *Metrics) ObserveDrop(recordType string) {
	if m == nil {
		return
	}
	m.QueueDrops.WithLabelValues(recordType).Inc()
}

// SetPending tracks the size of the pending-requests map.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// ObserveCall records one completed LLM call.
func (m *Metrics) ObserveCall(provider string, failed bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.CallDuration.WithLabelValues(provider, status).Observe(seconds)
}

// AddTokens accumulates provider-confirmed token counts.
func (m *Metrics) AddTokens(provider string, prompt, completion int) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	m.Tokens.WithLabelValues(provider, "completion").Add(float64(completion))
}

// AddCost accumulates spend for one call.
func (m *Metrics) AddCost(provider, model string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.Cost.WithLabelValues(provider, model).Add(amount)
}

// MetricsHandler serves the default registry over HTTP.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
