package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(eventsPublishedTotal) }

var eventsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Pub/sub publishes by event kind and result.",
	},
	[]string{"kind", "result"}, // kind: token|delta|complete
)

func IncEventPublished(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublishedTotal.WithLabelValues(norm(kind), result).Inc()
}
