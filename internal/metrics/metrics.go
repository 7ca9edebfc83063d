// Package metrics exposes Prometheus instruments for the session service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coliving_auth"

// Metrics holds the service's counters and histograms. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	actions      *prometheus.CounterVec
	guard        *prometheus.CounterVec
	verify       *prometheus.CounterVec
	inState      *prometheus.GaugeVec
	httpDuration *prometheus.HistogramVec
}

// New registers the instruments on a fresh registry along with Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_actions_total",
			Help:      "Auth gateway actions by action and result.",
		}, []string{"action", "result"}),
		guard: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by route class and decision.",
		}, []string{"class", "decision"}),
		verify: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Token verifications by token class and outcome.",
		}, []string{"class", "outcome"}),
		inState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_requests_in_state",
			Help:      "Gateway requests currently in a transient session state.",
		}, []string{"state"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Action counts one gateway action (login, refresh, logout, register) with its result label.
func (m *Metrics) Action(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}

// Guard counts one route guard decision.
func (m *Metrics) Guard(class, decision string) {
	if m == nil {
		return
	}
	m.guard.WithLabelValues(class, decision).Inc()
}

// Verification counts one token verification outcome.
func (m *Metrics) Verification(class, outcome string) {
	if m == nil {
		return
	}
	m.verify.WithLabelValues(class, outcome).Inc()
}

// Enter counts one request as being in state until the returned func is called.
func (m *Metrics) Enter(state string) (leave func()) {
	if m == nil {
		return func() {}
	}
	g := m.inState.WithLabelValues(state)
	g.Inc()
	return g.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware records request latency labelled by chi route pattern, so path parameters do not
// explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
