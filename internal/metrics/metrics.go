package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hub's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SessionStoreErrorsTotal *prometheus.CounterVec
	AuthServiceCallsTotal   *prometheus.CounterVec
	AccessDecisionsTotal    *prometheus.CounterVec
	GuardOutcomesTotal      *prometheus.CounterVec
	GuardRedirectsTotal     *prometheus.CounterVec
	SigninAttemptsTotal     *prometheus.CounterVec
	TranslateLookupsTotal   *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SessionStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_session_store_errors_total",
				Help: "Session store failures that were degraded to absent or no-op",
			},
			[]string{"op"},
		),
		AuthServiceCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_auth_service_calls_total",
				Help: "Calls made to the Auth Service by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_access_decisions_total",
				Help: "Access resolver verdicts",
			},
			[]string{"verdict", "deferred"},
		),
		GuardOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_guard_outcomes_total",
				Help: "Guard states reached at the end of a mount",
			},
			[]string{"state"},
		),
		GuardRedirectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_guard_redirects_total",
				Help: "Redirects issued by the guard",
			},
			[]string{"reason"},
		),
		SigninAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_signin_attempts_total",
				Help: "Password sign-in attempts by result",
			},
			[]string{"result"},
		),
		TranslateLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_translate_lookups_total",
				Help: "Translation lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionStoreErrorsTotal,
		m.AuthServiceCallsTotal,
		m.AccessDecisionsTotal,
		m.GuardOutcomesTotal,
		m.GuardRedirectsTotal,
		m.SigninAttemptsTotal,
		m.TranslateLookupsTotal,
	)
	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.SessionStoreErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) AuthCall(op string, err error) {
	if m == nil {
		return
	}
	m.AuthServiceCallsTotal.WithLabelValues(op, errors.Kind(err)).Inc()
}

func (m *Metrics) AccessDecision(verdict string, deferred bool) {
	if m == nil {
		return
	}
	m.AccessDecisionsTotal.WithLabelValues(verdict, strconv.FormatBool(deferred)).Inc()
}

func (m *Metrics) GuardOutcome(state string) {
	if m == nil {
		return
	}
	m.GuardOutcomesTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) GuardRedirect(reason string) {
	if m == nil {
		return
	}
	m.GuardRedirectsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SigninAttempt(err error) {
	if m == nil {
		return
	}
	m.SigninAttemptsTotal.WithLabelValues(errors.Kind(err)).Inc()
}

func (m *Metrics) TranslateLookup(result string) {
	if m == nil {
		return
	}
	m.TranslateLookupsTotal.WithLabelValues(result).Inc()
}
