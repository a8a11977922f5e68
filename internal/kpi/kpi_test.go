package kpi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
	"github.com/mind-engage/mindengage-mgd/internal/kpi"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

func TestResultScore(t *testing.T) {
	cases := []struct {
		name          string
		value, target float64
		want          float64
	}{
		{"on target", 95, 95, 100},
		{"half", 47.5, 95, 50},
		{"capped", 200, 95, 100},
		{"zero target", 10, 0, 0},
		{"negative target", 10, -5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, kpi.ResultScore(tc.value, tc.target), 1e-9)
		})
	}
}

func TestTotalScore(t *testing.T) {
	assert.Equal(t, 0.0, kpi.TotalScore(nil))
	assert.Equal(t, 80.0, kpi.TotalScore([]kpi.Result{
		{Score: 100, Weight: 60},
		{Score: 50, Weight: 40},
	}))
	assert.Equal(t, 33.33, kpi.TotalScore([]kpi.Result{{Score: 100.0 / 3, Weight: 7}}))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "03-2025", kpi.Period{Year: 2025, Month: 3}.Label())
	assert.Equal(t, "11-2024", kpi.Period{Year: 2024, Month: 11}.Label())
}

type recorder struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recorder) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	svc        *kpi.Service
	store      *kpi.SQLStore
	events     *recorder
	coord      catalog.Coordinator
	other      catalog.Coordinator
	period     kpi.Period
	kpiA, kpiB kpi.KPI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "kpi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	cat := catalog.NewSQLStore(dbh)
	store := kpi.NewSQLStore(dbh)
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{store: store, events: &recorder{}}
	f.coord, err = cat.CreateCoordinator(ctx, catalog.Coordinator{FullName: "Ana Pérez", Active: true})
	require.NoError(t, err)
	f.other, err = cat.CreateCoordinator(ctx, catalog.Coordinator{FullName: "Luis Soto", Active: true})
	require.NoError(t, err)

	fn, created, err := store.UpsertFunction(ctx, kpi.Function{Code: "ACADEMIC_QUALITY", Name: "Calidad académica", Weight: 30})
	require.NoError(t, err)
	require.True(t, created)
	f.kpiA, _, err = store.UpsertKPI(ctx, kpi.KPI{FunctionID: fn.ID, Name: "Hitos", Target: 95, Weight: 60})
	require.NoError(t, err)
	f.kpiB, _, err = store.UpsertKPI(ctx, kpi.KPI{FunctionID: fn.ID, Name: "Cierres", Target: 95, Weight: 40})
	require.NoError(t, err)

	f.period, err = store.CreatePeriod(ctx, kpi.Period{Year: 2025, Month: 3})
	require.NoError(t, err)

	f.svc = &kpi.Service{
		Store:        store,
		Coordinators: cat,
		Blobs:        blobs,
		Events:       f.events,
		Log:          zaptest.NewLogger(t),
	}
	return f
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fn, created, err := f.store.UpsertFunction(ctx, kpi.Function{Code: "ACADEMIC_QUALITY", Name: "Calidad", Weight: 35})
	require.NoError(t, err)
	assert.False(t, created)

	k, created, err := f.store.UpsertKPI(ctx, kpi.KPI{FunctionID: fn.ID, Name: "Hitos", Target: 90, Weight: 60})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.kpiA.ID, k.ID)

	fns, err := f.store.ListFunctions(ctx)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, 35, fns[0].Weight)
	require.Len(t, fns[0].KPIs, 2)
	assert.Equal(t, 90.0, fns[0].KPIs[0].Target)
}

func TestPeriodsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreatePeriod(ctx, kpi.Period{Year: 2024, Month: 12})
	require.NoError(t, err)
	_, err = f.store.CreatePeriod(ctx, kpi.Period{Year: 2025, Month: 4})
	require.NoError(t, err)

	ps, err := f.store.ListPeriods(ctx)
	require.NoError(t, err)
	var labels []string
	for _, p := range ps {
		labels = append(labels, p.Label())
	}
	assert.Equal(t, []string{"04-2025", "03-2025", "12-2024"}, labels)

	_, err = f.store.CreatePeriod(ctx, kpi.Period{Year: 2025, Month: 4})
	assert.Error(t, err)
}

func TestRecordResultRecomputesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, created, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ev.ID, again.ID)

	r, got, err := f.svc.RecordResult(ctx, ev.ID, f.kpiA.ID, 95)
	require.NoError(t, err)
	assert.InDelta(t, 100, r.Score, 1e-9)
	assert.Equal(t, 100.0, got.TotalScore)

	_, got, err = f.svc.RecordResult(ctx, ev.ID, f.kpiB.ID, 47.5)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.TotalScore)

	// Overwrite the first result.
	_, got, err = f.svc.RecordResult(ctx, ev.ID, f.kpiA.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.TotalScore)

	sc, err := f.svc.Scorecard(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, sc.Evaluation.TotalScore)
	require.Len(t, sc.Results, 2)
	assert.Equal(t, "Hitos", sc.Results[0].KPIName)
	assert.Equal(t, 60, sc.Results[0].Weight)

	require.Len(t, f.events.events, 3)
	for _, e := range f.events.events {
		assert.Equal(t, syncx.TypeKPIResultRecorded, e.Type)
		assert.Equal(t, syncx.KPIEvaluationKey(ev.ID), e.Key)
	}
}

func TestUnknownIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.OpenEvaluation(ctx, 999, f.period.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, _, err = f.svc.OpenEvaluation(ctx, f.coord.ID, 999)
	assert.ErrorIs(t, err, kpi.ErrNotFound)

	ev, _, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	_, _, err = f.svc.RecordResult(ctx, ev.ID, 999, 1)
	assert.ErrorIs(t, err, kpi.ErrNotFound)
	_, _, err = f.svc.RecordResult(ctx, 999, f.kpiA.ID, 1)
	assert.ErrorIs(t, err, kpi.ErrNotFound)
}

func TestClosedPeriodRejectsWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, _, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	r, _, err := f.svc.RecordResult(ctx, ev.ID, f.kpiA.ID, 50)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClosePeriod(ctx, f.period.ID))
	assert.ErrorIs(t, f.svc.ClosePeriod(ctx, 999), kpi.ErrNotFound)

	_, _, err = f.svc.RecordResult(ctx, ev.ID, f.kpiA.ID, 95)
	assert.ErrorIs(t, err, kpi.ErrPeriodClosed)
	_, err = f.svc.AddEvidence(ctx, r.ID, "acta de reunión", "", nil)
	assert.ErrorIs(t, err, kpi.ErrPeriodClosed)

	// Existing evaluations stay readable, new ones are refused.
	got, created, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ev.ID, got.ID)
	_, _, err = f.svc.OpenEvaluation(ctx, f.other.ID, f.period.ID)
	assert.ErrorIs(t, err, kpi.ErrPeriodClosed)

	sc, err := f.svc.Scorecard(ctx, ev.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0/95*100, sc.Results[0].Score, 1e-9)
}

func TestEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, _, err := f.svc.OpenEvaluation(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	r, _, err := f.svc.RecordResult(ctx, ev.ID, f.kpiA.ID, 90)
	require.NoError(t, err)

	withFile, err := f.svc.AddEvidence(ctx, r.ID, " informe mensual ", "Informe.PDF", strings.NewReader("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.Equal(t, "informe mensual", withFile.Description)
	assert.True(t, strings.HasPrefix(withFile.BlobKey, storage.EvidenceKey(r.ID, "")))
	assert.True(t, strings.HasSuffix(withFile.BlobKey, ".pdf"))

	noFile, err := f.svc.AddEvidence(ctx, r.ID, "reunión con jefatura", "", nil)
	require.NoError(t, err)
	assert.Empty(t, noFile.BlobKey)

	items, err := f.svc.ListEvidence(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, withFile.ID, items[0].ID)

	rc, _, err := f.svc.EvidenceFile(ctx, withFile.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(body))

	_, _, err = f.svc.EvidenceFile(ctx, noFile.ID)
	assert.ErrorIs(t, err, kpi.ErrNotFound)
	_, err = f.svc.ListEvidence(ctx, 999)
	assert.ErrorIs(t, err, kpi.ErrNotFound)
}

/* ------------------------------- Handlers ------------------------------- */

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(kpi.Routes(f.svc))
	defer srv.Close()

	resp, _ := doJSON(t, srv, http.MethodPost, "/periods", map[string]int{"year": 2025, "month": 13})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodPost, "/periods", map[string]int{"year": 2025, "month": 3})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, body := doJSON(t, srv, http.MethodPost, "/periods", map[string]int{"year": 2025, "month": 4})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 4.0, body["month"])

	resp, body = doJSON(t, srv, http.MethodGet, "/periods", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "04-2025", items[0].(map[string]any)["label"])

	open := map[string]int64{"coordinator_id": f.coord.ID, "period_id": f.period.ID}
	resp, body = doJSON(t, srv, http.MethodPost, "/evaluations", open)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	evID := int64(body["id"].(float64))
	resp, _ = doJSON(t, srv, http.MethodPost, "/evaluations", open)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	evPath := "/evaluations/" + strconv.FormatInt(evID, 10)
	resp, _ = doJSON(t, srv, http.MethodPut, evPath+"/results/"+strconv.FormatInt(f.kpiA.ID, 10), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body = doJSON(t, srv, http.MethodPut, evPath+"/results/"+strconv.FormatInt(f.kpiA.ID, 10), map[string]float64{"value": 95})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 100.0, body["total_score"])
	resultID := int64(body["result"].(map[string]any)["id"].(float64))

	resp, body = doJSON(t, srv, http.MethodGet, evPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["results"], 1)

	// Evidence upload.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("description", "planilla de hitos"))
	fw, err := mw.CreateFormFile("file", "hitos.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hito,estado\n1,ok\n"))
	require.NoError(t, mw.Close())
	up, err := srv.Client().Post(srv.URL+"/results/"+strconv.FormatInt(resultID, 10)+"/evidence", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var evidence map[string]any
	require.NoError(t, json.NewDecoder(up.Body).Decode(&evidence))
	up.Body.Close()
	require.Equal(t, http.StatusCreated, up.StatusCode)

	file, err := srv.Client().Get(srv.URL + "/evidence/" + strconv.FormatInt(int64(evidence["id"].(float64)), 10) + "/file")
	require.NoError(t, err)
	content, _ := io.ReadAll(file.Body)
	file.Body.Close()
	assert.Equal(t, http.StatusOK, file.StatusCode)
	assert.Equal(t, "hito,estado\n1,ok\n", string(content))

	resp, _ = doJSON(t, srv, http.MethodPost, "/periods/"+strconv.FormatInt(f.period.ID, 10)+"/close", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodPut, evPath+"/results/"+strconv.FormatInt(f.kpiA.ID, 10), map[string]float64{"value": 10})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/evaluations/abc", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodGet, "/evaluations/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
