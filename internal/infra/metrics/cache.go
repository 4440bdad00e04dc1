package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_cache_lookups_total",
		Help: "Redis read-through lookups made before loading executor context from the database.",
	},
	[]string{"cache", "result"}, // result: 'hit', 'miss', 'error'
)

func IncCacheLookup(cacheName, result string) {
	cacheLookupsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
