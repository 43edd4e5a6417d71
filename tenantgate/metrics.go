package tenantgate

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	refreshes      *prometheus.CounterVec
	sessionCleared prometheus.Counter
	cacheHits      prometheus.Counter
}

// newMetrics builds the client's collectors and registers them with reg. A
// nil registerer yields working but unregistered collectors. Clients sharing
// a registerer share its collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantgate_requests_total",
			Help: "Outbound HTTP attempts by method and status class",
		}, []string{"method", "status_class"})),
		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantgate_request_duration_seconds",
			Help:    "Duration of outbound HTTP attempts",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"})),
		refreshes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantgate_refresh_total",
			Help: "Access token refresh calls by outcome",
		}, []string{"outcome"})),
		sessionCleared: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantgate_session_cleared_total",
			Help: "Sessions cleared after an unrecoverable refresh failure",
		})),
		cacheHits: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantgate_cache_hits_total",
			Help: "GET requests served from the response cache",
		})),
	}
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor. Any other registration error leaves c unregistered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}

	err := reg.Register(c)
	if err == nil {
		return c
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}

func (m *metrics) observeAttempt(method string, status int, start time.Time) {
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *metrics) observeRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
