// Package metrics exposes Prometheus metrics for the identity server and the
// session manager.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for EduStack.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics.
	AuthAttemptsTotal        *prometheus.CounterVec
	RateLimitRejectionsTotal prometheus.Counter

	// Audit collector metrics.
	AuditFlushesTotal *prometheus.CounterVec
	AuditEventsTotal  prometheus.Counter

	// Session manager metrics.
	GuardTimeoutsTotal *prometheus.CounterVec
	ProfileCacheTotal  *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edustack_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edustack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AuthAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edustack_auth_attempts_total",
			Help: "Total number of token grants by grant type and outcome.",
		}, []string{"grant_type", "outcome"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edustack_ratelimit_rejections_total",
			Help: "Total number of sign-in requests rejected by the rate limiter.",
		}),

		AuditFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edustack_audit_flushes_total",
			Help: "Total number of audit collector flushes.",
		}, []string{"status"}),

		AuditEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edustack_audit_events_total",
			Help: "Total number of audit events written.",
		}),

		GuardTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edustack_guard_timeouts_total",
			Help: "Total number of provider calls abandoned by the timeout guard.",
		}, []string{"op"}),

		ProfileCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edustack_profile_cache_lookups_total",
			Help: "Total number of profile cache lookups by result.",
		}, []string{"result"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edustack_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.RateLimitRejectionsTotal,
		m.AuditFlushesTotal,
		m.AuditEventsTotal,
		m.GuardTimeoutsTotal,
		m.ProfileCacheTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, pattern string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(d.Seconds())
}

// IncAuthAttempt increments the grant counter.
func (m *Metrics) IncAuthAttempt(grantType, outcome string) {
	m.AuthAttemptsTotal.WithLabelValues(grantType, outcome).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// AuditFlushed implements audit.FlushObserver.
func (m *Metrics) AuditFlushed(count int, err error) {
	if err != nil {
		m.AuditFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.AuditFlushesTotal.WithLabelValues("ok").Inc()
	m.AuditEventsTotal.Add(float64(count))
}

// GuardTimedOut implements session.TimeoutObserver.
func (m *Metrics) GuardTimedOut(op string) {
	m.GuardTimeoutsTotal.WithLabelValues(op).Inc()
}

// CacheHit implements profile.Observer.
func (m *Metrics) CacheHit() {
	m.ProfileCacheTotal.WithLabelValues("hit").Inc()
}

// CacheMiss implements profile.Observer.
func (m *Metrics) CacheMiss() {
	m.ProfileCacheTotal.WithLabelValues("miss").Inc()
}
