// Package metrics exposes Prometheus collectors for the conversation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deptqa"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed turns",
		},
		[]string{"route", "status"}, // status: success, error
	)

	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Histogram of graph node duration in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"node"},
	)

	nodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_failures_total",
			Help:      "Total number of node failures routed to clarification",
		},
		[]string{"node"},
	)

	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Admissibility gate decisions",
		},
		[]string{"decision"}, // accept, reject, follow_up
	)

	retrievedDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_documents",
			Help:      "Number of documents collected per retrieving turn",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
	)

	llmCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"model"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total tokens consumed by model calls",
		},
		[]string{"model", "type"}, // type: input, output
	)
)

// Collectors returns every collector of the package, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		turnsTotal,
		nodeDuration,
		nodeFailuresTotal,
		gateDecisionsTotal,
		retrievedDocuments,
		llmCostTotal,
		llmTokensTotal,
	}
}

// Register adds all collectors to reg. Already registered collectors are ignored.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func RecordTurn(route, status string) {
	turnsTotal.WithLabelValues(route, status).Inc()
}

func RecordNodeDuration(node string, seconds float64) {
	nodeDuration.WithLabelValues(node).Observe(seconds)
}

func RecordNodeFailure(node string) {
	nodeFailuresTotal.WithLabelValues(node).Inc()
}

func RecordGateDecision(decision string) {
	gateDecisionsTotal.WithLabelValues(decision).Inc()
}

func RecordRetrievedDocuments(n int) {
	retrievedDocuments.Observe(float64(n))
}

func RecordLLMUsage(model string, inputTokens, outputTokens int, costUSD float64) {
	llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	llmCostTotal.WithLabelValues(model).Add(costUSD)
}
