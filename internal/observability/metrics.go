// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Nestling Prometheus collectors.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	SessionsSwept  prometheus.Counter
	SweepsFailed   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestling_auth_operations_total",
				Help: "Auth service operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestling_http_requests_total",
				Help: "HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nestling_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nestling_sessions_swept_total",
			Help: "Expired or revoked sessions deleted by the sweeper",
		}),
		SweepsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nestling_session_sweeps_failed_total",
			Help: "Session sweeps that returned an error",
		}),
	}

	reg.MustRegister(m.AuthOperations, m.HTTPRequests, m.HTTPDuration, m.SessionsSwept, m.SweepsFailed)
	return m
}

// RecordAuthOperation counts one auth service call.
func (m *Metrics) RecordAuthOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTPRequest records one served request. Route is the registered
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordSweep records the result of one sweep.
func (m *Metrics) RecordSweep(deleted int64, err error) {
	if err != nil {
		m.SweepsFailed.Inc()
		return
	}
	m.SessionsSwept.Add(float64(deleted))
}
