package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, cacheEntryBytes) }

// CacheResult labels the outcome of one cache read.
type CacheResult string

const (
	CacheHit     CacheResult = "hit"
	CacheMiss    CacheResult = "miss"
	CacheCorrupt CacheResult = "corrupt" // stored but not valid JSON; served as a miss
	CacheError   CacheResult = "error"
)

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Result cache reads by outcome.",
		},
		[]string{"cache", "result"},
	)

	cacheEntryBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_entry_bytes",
			Help:    "Size of results written to the cache.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 7), // 256B .. 1MiB
		},
		[]string{"cache"},
	)
)

func IncCacheRequest(cacheName string, r CacheResult) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), string(r)).Inc()
}

func ObserveCacheWrite(cacheName string, size int) {
	cacheEntryBytes.WithLabelValues(norm(cacheName)).Observe(float64(size))
}
