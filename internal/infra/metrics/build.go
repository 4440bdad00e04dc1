package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(workerInfo) }

var workerInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "worker_info",
		Help: "Always 1; labels identify the running worker binary and its consumer name.",
	},
	[]string{"version", "commit", "go_version", "consumer"},
)

// SetWorkerInfo is called once the queue consumer name is known.
func SetWorkerInfo(version, commit, consumer string) {
	workerInfo.WithLabelValues(version, commit, runtime.Version(), consumer).Set(1)
}
