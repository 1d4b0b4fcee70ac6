package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, queueDepth) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use', 'max'
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_queue_depth",
			Help: "Jobs currently held by the queue backend, by state.",
		},
		[]string{"state"}, // 'queued', 'active', 'retained'
	)
)

func SetDBPoolStats(total, idle, inUse, max int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	dbPoolStats.WithLabelValues("max").Set(float64(max))
}

func SetQueueDepth(state string, n int) {
	queueDepth.WithLabelValues(norm(state)).Set(float64(n))
}
