package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
	"github.com/mind-engage/mindengage-mgd/internal/evaluation"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

type env struct {
	h     http.Handler
	cat   *catalog.SQLStore
	evals *evaluation.SQLStore
	blobs *storage.FSStore
	ev    *syncx.EventRepo
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	e := &env{
		cat:   catalog.NewSQLStore(dbh),
		evals: evaluation.NewSQLStore(dbh),
		blobs: blobs,
		ev:    syncx.NewEventRepo(dbh, ""),
	}
	e.h = Routes(Deps{Catalog: e.cat, Evaluations: e.evals, Events: e.ev, Blobs: blobs})
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func TestCoordinatorCRUD(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/coordinators/", `{"full_name":"  Ana Pérez ","campus":"Arica","is_active":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c catalog.Coordinator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "Ana Pérez", c.FullName)
	assert.NotZero(t, c.ID)

	rec = e.do(t, http.MethodPost, "/coordinators/", `{"full_name":"Ana Pérez"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/coordinators/?q=p%C3%A9rez", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []catalog.Coordinator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = e.do(t, http.MethodPut, "/coordinators/"+itoa(c.ID), `{"full_name":"Ana Pérez","area":"TI","is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := e.cat.GetCoordinator(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "TI", got.Area)
	assert.False(t, got.Active)

	rec = e.do(t, http.MethodDelete, "/coordinators/"+itoa(c.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodGet, "/coordinators/"+itoa(c.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationAndBadInput(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/behaviors/", `{"label":"Compromiso","weight":140}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "weight")

	rec = e.do(t, http.MethodPost, "/periods/", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/periods/", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/periods/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReferencedBehaviorIsLocked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c, err := e.cat.CreateCoordinator(ctx, catalog.Coordinator{FullName: "Ana", Active: true})
	require.NoError(t, err)
	p, err := e.cat.CreatePeriod(ctx, catalog.Period{Name: "2025"})
	require.NoError(t, err)
	b, err := e.cat.CreateBehavior(ctx, catalog.Behavior{Label: "Compromiso", Weight: 100})
	require.NoError(t, err)

	ev, _, err := e.evals.GetOrCreate(ctx, c.ID, p.ID)
	require.NoError(t, err)
	require.NoError(t, e.evals.UpsertResponse(ctx, ev.ID, evaluation.KindBehavior, b.ID, "4"))

	rec := e.do(t, http.MethodPut, "/behaviors/"+itoa(b.ID), `{"label":"Otro","weight":100}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(t, http.MethodDelete, "/behaviors/"+itoa(b.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/evaluations?period="+itoa(p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var evs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0]["score_total"])

	rec = e.do(t, http.MethodGet, "/evaluations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/weights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"behaviors":100,"objectives":0,"balanced":false}`, rec.Body.String())
}

func TestEventsAndActas(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.ev.Append(ctx, syncx.NewEvent(syncx.TypeEvaluationClosed, syncx.EvaluationKey(7), nil)))

	rec := e.do(t, http.MethodGet, "/events?key=evaluation:7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []syncx.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, syncx.TypeEvaluationClosed, events[0].Type)

	rec = e.do(t, http.MethodGet, "/actas/ACTA-ARICA-COORD-2025-0007.pdf", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := e.blobs.Put(storage.ActaKey("ACTA-ARICA-COORD-2025-0007"), strings.NewReader("%PDF-1.3 fake"))
	require.NoError(t, err)
	rec = e.do(t, http.MethodGet, "/actas/ACTA-ARICA-COORD-2025-0007.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="acta_ACTA-ARICA-COORD-2025-0007.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 fake", rec.Body.String())
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
