package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsProcessedTotal, jobDurationSeconds, jobsInFlight, jobsReapedTotal) }

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total number of jobs processed, labeled by type and final status.",
		},
		[]string{"type", "status"}, // 'completed', 'failed'
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Wall time from claim to terminal status.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_jobs_in_flight",
			Help: "Jobs currently being executed by this process.",
		},
	)

	jobsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_jobs_reaped_total",
			Help: "Jobs failed by the reaper after sitting in processing too long.",
		},
	)
)

func IncJob(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveJobDuration(jobType string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(norm(jobType)).Observe(d.Seconds())
}

func JobStarted()  { jobsInFlight.Inc() }
func JobFinished() { jobsInFlight.Dec() }

func AddJobsReaped(n int64) {
	if n > 0 {
		jobsReapedTotal.Add(float64(n))
	}
}
