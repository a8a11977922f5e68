package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/evaluacion/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/evaluacion/"+id+"/", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/evaluacion/{id}/", "GET", "404"))
	assert.Equal(t, 3.0, got)
}

func TestCountersAndNilReceiver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.EvaluationClosed()
	m.ActaRendered("pdf")
	m.ActaRendered("pdf")
	m.ClosedMutationRejected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsClosed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActaRenders.WithLabelValues("pdf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClosedMutationRejections))

	var none *Metrics
	assert.NotPanics(t, func() {
		none.EvaluationClosed()
		none.ActaRendered("html")
		none.ClosedMutationRejected()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.EvaluationClosed()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mgd_evaluations_closed_total 1"))
}
