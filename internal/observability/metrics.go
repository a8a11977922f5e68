// Package observability holds the Prometheus metrics for the service.
//
// Metrics are registered on a caller-supplied registry so tests can use a
// fresh one per case. A nil *Metrics is valid and records nothing.
package observability

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

const metricsNamespace = "mgd"

type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: route (chi pattern), method, status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures handler latency.
	// Labels: route, method
	RequestDuration *prometheus.HistogramVec

	// EvaluationsClosed counts OPEN → CLOSED transitions.
	EvaluationsClosed prometheus.Counter

	// ActaRenders counts rendered actas.
	// Labels: format (html, pdf)
	ActaRenders *prometheus.CounterVec

	// ClosedMutationRejections counts saves refused because the evaluation was closed.
	ClosedMutationRejections prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),
		EvaluationsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evaluations_closed_total",
			Help:      "Evaluations moved to the closed state",
		}),
		ActaRenders: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "acta_renders_total",
				Help:      "Rendered actas by output format",
			},
			[]string{"format"},
		),
		ClosedMutationRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "closed_mutation_rejections_total",
			Help:      "Save attempts rejected because the evaluation is closed",
		}),
	}
}

func (m *Metrics) EvaluationClosed() {
	if m == nil {
		return
	}
	m.EvaluationsClosed.Inc()
}

func (m *Metrics) ActaRendered(format string) {
	if m == nil {
		return
	}
	m.ActaRenders.WithLabelValues(format).Inc()
}

func (m *Metrics) ClosedMutationRejected() {
	if m == nil {
		return
	}
	m.ClosedMutationRejections.Inc()
}

// Middleware records request counts and latency keyed by the chi route pattern,
// so ids in the path do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
