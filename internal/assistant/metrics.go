package assistant

import "github.com/prometheus/client_golang/prometheus"

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "assistant",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Latency of LLM completions",
		// Focus on sub-10s buckets with a few higher ones for visibility.
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	},
	[]string{"provider", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"provider", "type"}, // type: input, output, total
)

var toolExecutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Tool calls executed against the scheduling backend",
	},
	[]string{"tool", "outcome"},
)

var guardCorrectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "engine",
		Name:      "guard_corrections_total",
		Help:      "Replies replaced because a success claim had no supporting operation",
	},
	[]string{"operation"},
)

var turnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "engine",
		Name:      "turns_total",
		Help:      "Conversation turns processed",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(toolExecutionsTotal)
	prometheus.MustRegister(guardCorrectionsTotal)
	prometheus.MustRegister(turnsTotal)
}

func observeLLMCall(provider string, seconds float64, usage TokenUsage, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(provider, status).Observe(seconds)
	if err == nil {
		llmTokensTotal.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
		llmTokensTotal.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
		llmTokensTotal.WithLabelValues(provider, "total").Add(float64(usage.TotalTokens))
	}
}
