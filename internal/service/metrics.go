package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of the request gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RetriesTotal     prometheus.Counter
	RefreshTotal     *prometheus.CounterVec
	RefreshCoalesced prometheus.Counter
}

// Refresh outcomes recorded in RefreshTotal. RefreshSuperseded marks a
// result dropped because the session was logged out or replaced meanwhile.
const (
	RefreshSuccess    = "success"
	RefreshNoSession  = "no_session"
	RefreshFailure    = "failure"
	RefreshSuperseded = "superseded"
)

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "villagehub",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total authenticated requests sent, by HTTP status",
			},
			[]string{"method", "status"}, // status=200/401/.../error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "villagehub",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Authenticated request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RetriesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "villagehub",
				Subsystem: "gateway",
				Name:      "retries_total",
				Help:      "Requests retried after a successful token refresh",
			},
		),
		RefreshTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "villagehub",
				Subsystem: "session",
				Name:      "refresh_total",
				Help:      "Token refresh attempts by outcome",
			},
			[]string{"result"}, // result=success/no_session/failure
		),
		RefreshCoalesced: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "villagehub",
				Subsystem: "session",
				Name:      "refresh_coalesced_total",
				Help:      "Refresh requests served by another caller's in-flight refresh",
			},
		),
	}
}
