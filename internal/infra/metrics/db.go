package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbConnections) }

var dbConnections = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "worker_db_connections",
		Help: "Database connections held by the worker's job and conversation store.",
	},
	[]string{"driver", "state"}, // state: 'open', 'idle', 'in_use'
)

// SetDBConnections records one sample of the store's connection pool.
func SetDBConnections(driver string, open, idle, inUse int) {
	d := norm(driver)
	dbConnections.WithLabelValues(d, "open").Set(float64(open))
	dbConnections.WithLabelValues(d, "idle").Set(float64(idle))
	dbConnections.WithLabelValues(d, "in_use").Set(float64(inUse))
}
