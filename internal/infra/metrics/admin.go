package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminRequestsTotal) }

var adminRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_http_requests_total",
		Help: "Requests served by the admin HTTP surface.",
	},
	[]string{"route", "code"},
)

// IncAdminRequest counts one request. route is the matched pattern, not the raw path.
func IncAdminRequest(route string, code int) {
	adminRequestsTotal.WithLabelValues(norm(route), strconv.Itoa(code)).Inc()
}
