package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(budgetDecisionsTotal) }

var budgetDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "budget_decisions_total",
		Help: "Daily budget decisions by category.",
	},
	[]string{"category", "decision"}, // 'allowed', 'rejected', 'unavailable'
)

func IncBudgetDecision(category, decision string) {
	budgetDecisionsTotal.WithLabelValues(norm(category), norm(decision)).Inc()
}
