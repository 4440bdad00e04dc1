package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueEntriesTotal) }

var queueEntriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_entries_total",
		Help: "Queue entry transitions: claimed, reclaimed, acked, dead_lettered.",
	},
	[]string{"queue", "event"},
)

func IncQueueEvent(queue, event string) {
	queueEntriesTotal.WithLabelValues(norm(queue), norm(event)).Inc()
}
