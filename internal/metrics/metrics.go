// Package metrics provides Prometheus instrumentation for the core server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the
// global default) so that only this server's metrics appear on the
// /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SessionsActive            prometheus.Gauge
	SessionsSweptTotal        prometheus.Counter
	RateLimitDeniedTotal      *prometheus.CounterVec
	RateLimitBlacklistedTotal prometheus.Counter
	RateLimitBucketsActive    prometheus.Gauge
	SecretsCryptoFailures     *prometheus.CounterVec

	DBPoolAcquired prometheus.Gauge
	DBPoolIdle     prometheus.Gauge
	DBPoolTotal    prometheus.Gauge
}

// New creates and registers all metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "core_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "core_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "core_sessions_active",
			Help: "Number of sessions currently held in the session controller.",
		}),

		SessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "core_sessions_swept_total",
			Help: "Total number of sessions removed by the expiry sweeper.",
		}),

		RateLimitDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "core_ratelimit_denied_total",
			Help: "Total number of requests rejected for exceeding a rate limit.",
		}, []string{"reason"}),

		RateLimitBlacklistedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "core_ratelimit_blacklisted_total",
			Help: "Total number of connections rejected because their source was blacklisted.",
		}),

		RateLimitBucketsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "core_ratelimit_buckets_active",
			Help: "Number of token buckets currently tracked by the rate limiter.",
		}),

		SecretsCryptoFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "core_secrets_crypto_failures_total",
			Help: "Total number of secret encrypt/decrypt failures.",
		}, []string{"operation"}),

		DBPoolAcquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "core_db_pool_acquired",
			Help: "Number of currently acquired database connections.",
		}),

		DBPoolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "core_db_pool_idle",
			Help: "Number of idle database connections in the pool.",
		}),

		DBPoolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "core_db_pool_total",
			Help: "Total number of database connections in the pool.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsActive,
		m.SessionsSweptTotal,
		m.RateLimitDeniedTotal,
		m.RateLimitBlacklistedTotal,
		m.RateLimitBucketsActive,
		m.SecretsCryptoFailures,
		m.DBPoolAcquired,
		m.DBPoolIdle,
		m.DBPoolTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetSessionsActive updates the active-session gauge.
func (m *Metrics) SetSessionsActive(n float64) {
	m.SessionsActive.Set(n)
}

// IncSessionsSwept increments the sweeper counter by n.
func (m *Metrics) IncSessionsSwept(n float64) {
	m.SessionsSweptTotal.Add(n)
}

// IncRateLimitDenied increments the denial counter for the given reason
// ("bucket_exhausted" or "blacklisted").
func (m *Metrics) IncRateLimitDenied(reason string) {
	m.RateLimitDeniedTotal.WithLabelValues(reason).Inc()
	if reason == "blacklisted" {
		m.RateLimitBlacklistedTotal.Inc()
	}
}

// SetRateLimitBucketsActive updates the active-bucket gauge.
func (m *Metrics) SetRateLimitBucketsActive(n float64) {
	m.RateLimitBucketsActive.Set(n)
}

// IncSecretsCryptoFailure increments the crypto-failure counter for the
// given operation ("encrypt" or "decrypt").
func (m *Metrics) IncSecretsCryptoFailure(operation string) {
	m.SecretsCryptoFailures.WithLabelValues(operation).Inc()
}

// DBPoolStats holds connection pool statistics for metric updates.
type DBPoolStats struct {
	Acquired float64
	Idle     float64
	Total    float64
}

// SetDBPoolStats updates the DB pool gauges.
func (m *Metrics) SetDBPoolStats(stats DBPoolStats) {
	m.DBPoolAcquired.Set(stats.Acquired)
	m.DBPoolIdle.Set(stats.Idle)
	m.DBPoolTotal.Set(stats.Total)
}
