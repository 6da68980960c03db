// Package metrics holds the Prometheus collectors exported by the
// calculator service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lemonberrylabs/keypad-calc/pkg/types"
)

// Metrics groups the service collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	sessions    prometheus.Gauge
	tokens      prometheus.Histogram
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keypad_calc_evaluations_total",
				Help: "Total number of evaluations by kind and result",
			},
			[]string{"kind", "result"},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keypad_calc_sessions",
				Help: "Number of open calculator sessions",
			},
		),
		tokens: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keypad_calc_expression_tokens",
				Help:    "Number of tokens per evaluated expression",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
	}

	m.Registry.MustRegister(
		m.evaluations,
		m.sessions,
		m.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEvaluation records one evaluation.
func (m *Metrics) ObserveEvaluation(kind string, result types.Result, tokens int) {
	if m == nil {
		return
	}
	m.evaluations.With(prometheus.Labels{
		"kind":   kind,
		"result": result.String(),
	}).Inc()
	m.tokens.Observe(float64(tokens))
}

// SetSessions records the current session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// EvaluationCount returns the counter value for a kind/result pair. It is
// meant for tests and the CLI summary.
func (m *Metrics) EvaluationCount(kind string, result types.Result) float64 {
	if m == nil {
		return 0
	}
	mfs, err := m.Registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != "keypad_calc_evaluations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var k, r string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "kind":
					k = lp.GetValue()
				case "result":
					r = lp.GetValue()
				}
			}
			if k == kind && r == result.String() {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
