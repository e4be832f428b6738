package devserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the dev server's prometheus collectors, registered on a
// registry owned by the server so several servers can run in one process.
type Metrics struct {
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Registrations    prometheus.Counter
	ReferralsApplied prometheus.Counter
	TasksCompleted   prometheus.Counter
	InjectedFailures prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memeindex_devserver_requests_total",
			Help: "Total number of API requests by route and status",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memeindex_devserver_request_duration_seconds",
			Help:    "Latency of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "memeindex_devserver_registrations_total",
			Help: "Total number of users registered",
		}),
		ReferralsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "memeindex_devserver_referrals_applied_total",
			Help: "Total number of referral codes applied",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "memeindex_devserver_tasks_completed_total",
			Help: "Total number of tasks credited",
		}),
		InjectedFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "memeindex_devserver_injected_failures_total",
			Help: "Total number of registration failures injected",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
