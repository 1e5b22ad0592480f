package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quizqa/internal/backend"
	"quizqa/internal/evaluation"
	"quizqa/internal/services"
)

const namespace = "quizqa"

// Metrics is the per-run Prometheus instrumentation. Each instance owns its
// own registry so several runs can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	calls     *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	throttles *prometheus.CounterVec
	retries   *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	rate      *prometheus.GaugeVec
	checks    *prometheus.CounterVec
	records   *prometheus.CounterVec
	flushes   *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Backend calls by outcome.",
		}, []string{"backend", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_in_flight",
			Help:      "Backend calls currently on the wire.",
		}, []string{"backend"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_throttles_total",
			Help:      "Throttle signals received from backends.",
		}, []string{"backend"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Retries scheduled by the backoff controller.",
		}, []string{"backend", "kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_tokens_total",
			Help:      "Tokens reported by backends.",
		}, []string{"backend", "type"}),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "governor_rate_per_minute",
			Help:      "Effective admission rate of each backend's governor.",
		}, []string{"backend"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_results_total",
			Help:      "Check results recorded, by result.",
		}, []string{"backend", "check", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_committed_total",
			Help:      "Evaluation records merged, by resulting status.",
		}, []string{"status"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_flushes_total",
			Help:      "Checkpoint flush attempts, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.calls, m.inFlight, m.throttles, m.retries, m.tokens, m.rate, m.checks, m.records, m.flushes)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRate records a governor rate change. Its signature matches
// ratelimit.Observer.
func (m *Metrics) ObserveRate(backendName string, ratePerMinute float64) {
	m.rate.WithLabelValues(backendName).Set(ratePerMinute)
}

// CallStarted marks a call as in flight.
func (m *Metrics) CallStarted(backendName string) {
	m.inFlight.WithLabelValues(backendName).Inc()
}

// CallFinished records a call's outcome.
func (m *Metrics) CallFinished(backendName string, kind services.Kind) {
	m.inFlight.WithLabelValues(backendName).Dec()
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	m.calls.WithLabelValues(backendName, outcome).Inc()
}

// Throttled counts a throttle signal.
func (m *Metrics) Throttled(backendName string) {
	m.throttles.WithLabelValues(backendName).Inc()
}

// Retried counts a scheduled retry.
func (m *Metrics) Retried(backendName string, kind services.Kind) {
	m.retries.WithLabelValues(backendName, string(kind)).Inc()
}

// Usage adds token counts.
func (m *Metrics) Usage(backendName string, usage backend.Usage) {
	add := func(kind string, n int64) {
		if n > 0 {
			m.tokens.WithLabelValues(backendName, kind).Add(float64(n))
		}
	}
	add("input", usage.InputTokens)
	add("output", usage.OutputTokens)
	add("cache_read", usage.CacheReadTokens)
	add("cache_write", usage.CacheCreateTokens)
}

// CheckRecorded counts one stored check result.
func (m *Metrics) CheckRecorded(backendName, check string, passed bool, failure evaluation.Failure) {
	result := "fail"
	switch {
	case failure != evaluation.FailureNone:
		result = string(failure)
	case passed:
		result = "pass"
	}
	m.checks.WithLabelValues(backendName, check, result).Inc()
}

// RecordCommitted counts a merged record.
func (m *Metrics) RecordCommitted(status evaluation.Classification) {
	m.records.WithLabelValues(string(status)).Inc()
}

// Flushed counts a checkpoint flush.
func (m *Metrics) Flushed(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.flushes.WithLabelValues(result).Inc()
}
