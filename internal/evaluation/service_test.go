package evaluation_test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
	"github.com/mind-engage/mindengage-mgd/internal/evaluation"
	"github.com/mind-engage/mindengage-mgd/internal/observability"
	"github.com/mind-engage/mindengage-mgd/internal/report"
	"github.com/mind-engage/mindengage-mgd/internal/scoring"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recordedEvents) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc     *evaluation.Service
	events  *recordedEvents
	blobs   *storage.FSStore
	metrics *observability.Metrics
	coord   catalog.Coordinator
	period  catalog.Period
	b1, b2  catalog.Behavior
	o1      catalog.Objective
}

// newFixture seeds a small catalog. useSQL picks the SQL response store over
// the in-memory one.
func newFixture(t *testing.T, useSQL bool) *fixture {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	cat := catalog.NewSQLStore(dbh)
	f := &fixture{events: &recordedEvents{}}
	f.coord, err = cat.CreateCoordinator(ctx, catalog.Coordinator{FullName: "Ana Pérez", Campus: "Arica", Active: true})
	require.NoError(t, err)
	f.period, err = cat.CreatePeriod(ctx, catalog.Period{Name: "Evaluación 2025"})
	require.NoError(t, err)
	f.b1, err = cat.CreateBehavior(ctx, catalog.Behavior{Label: "Compromiso", Weight: 50})
	require.NoError(t, err)
	f.b2, err = cat.CreateBehavior(ctx, catalog.Behavior{Label: "Trabajo en equipo", Weight: 50})
	require.NoError(t, err)
	f.o1, err = cat.CreateObjective(ctx, catalog.Objective{Axis: "Docencia", Label: "Retención", Weight: 100})
	require.NoError(t, err)

	f.blobs, err = storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	f.metrics = observability.NewMetrics(prometheus.NewRegistry())

	var store evaluation.Store = evaluation.NewInMemoryStore()
	if useSQL {
		store = evaluation.NewSQLStore(dbh)
	}
	f.svc = &evaluation.Service{
		Catalog:      cat,
		Store:        store,
		Events:       f.events,
		Blobs:        f.blobs,
		Metrics:      f.metrics,
		Log:          zaptest.NewLogger(t),
		ArchiveActas: true,
		Options:      report.Options{Site: "ARICA", Role: "COORD", Institution: "INACAP", Title: "Acta"},
		Now:          func() time.Time { return time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("sql", func(t *testing.T) { fn(t, newFixture(t, true)) })
	t.Run("memory", func(t *testing.T) { fn(t, newFixture(t, false)) })
}

func TestOpen_IsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		first, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)
		second, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.False(t, second.Closed)
		assert.Equal(t, []string{syncx.TypeEvaluationCreated}, f.events.types())
	})
}

func TestOpen_UnknownCoordinatorOrPeriod(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.Open(ctx, 999, f.period.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = f.svc.Open(ctx, f.coord.ID, 999)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestOpen_InactiveCoordinator(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)

		inactive := f.coord
		inactive.Active = false
		require.NoError(t, f.svc.Catalog.(catalog.Store).UpdateCoordinator(ctx, inactive))

		_, err = f.svc.Open(ctx, f.coord.ID, f.period.ID)
		assert.ErrorIs(t, err, catalog.ErrNotFound)

		d, err := f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		assert.False(t, d.Coordinator.Active)
		_, err = f.svc.Acta(ctx, ev.ID)
		assert.NoError(t, err)
	})
}

func TestResponses_ScoreIsStable(t *testing.T) {
	r := evaluation.NewResponses()
	r.Behaviors[3] = "4.8"
	r.Behaviors[1] = "1.1"
	r.Behaviors[2] = "4.1"
	assert.Equal(t, []string{"1.1", "4.1", "4.8"}, r.Values(evaluation.KindBehavior))

	want := r.Score()
	for range 200 {
		got := r.Score()
		require.Equal(t, want.Score, got.Score)
		require.Equal(t, want.Level, got.Level)
	}
}

func TestSave_ScoresAndSkipsBlankNewItems(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)

		out, err := f.svc.Save(ctx, ev.ID, evaluation.Submission{
			Behaviors:  map[int64]string{f.b1.ID: " 4 ", f.b2.ID: "5"},
			Objectives: map[int64]string{f.o1.ID: "3", 9999: "5"},
			Comments:   evaluation.Comments{Strengths: "  Liderazgo  "},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Written)
		assert.False(t, out.Closed)

		d, err := f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, "4", d.Responses.Behaviors[f.b1.ID])
		assert.NotContains(t, d.Responses.Objectives, int64(9999))
		assert.Equal(t, "Liderazgo", d.Evaluation.Comments.Strengths)
		assert.InDelta(t, 3.75, d.Result.Score.Float, 1e-9)
		assert.InDelta(t, 90.0, d.Result.Equivalent.Float, 1e-9)
		assert.Equal(t, scoring.LevelPartial, d.Result.Level)
		assert.InDelta(t, 3.75, d.Evaluation.ScoreTotal.Float, 1e-9)

		// blank on an existing row clears it; blank on a missing row creates nothing
		out, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{
			Behaviors: map[int64]string{f.b1.ID: "", f.b2.ID: "5"},
		})
		require.NoError(t, err)
		d, err = f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		v, ok := d.Responses.Lookup(evaluation.KindBehavior, f.b1.ID)
		assert.True(t, ok)
		assert.Equal(t, "", v)
		assert.InDelta(t, 5.0, d.Result.BehaviorAvg.Float, 1e-9)
		// objective o1 was absent from the form and had a row: it is cleared too
		assert.False(t, d.Result.ObjectiveAvg.Valid)
		assert.Equal(t, "", d.Evaluation.Comments.Strengths)
	})
}

func TestSave_NoParseableValuesLeavesScoreUndefined(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)
		_, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{
			Behaviors: map[int64]string{f.b1.ID: "n/a", f.b2.ID: "4,5"},
		})
		require.NoError(t, err)

		d, err := f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		assert.False(t, d.Result.Score.Valid)
		assert.Equal(t, scoring.LevelNoData, d.Result.Level)
		assert.False(t, d.Evaluation.ScoreTotal.Valid)
	})
}

func TestSave_CloseArchivesAndLocks(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
		require.NoError(t, err)

		out, err := f.svc.Save(ctx, ev.ID, evaluation.Submission{
			Behaviors:  map[int64]string{f.b1.ID: "4", f.b2.ID: "5"},
			Objectives: map[int64]string{f.o1.ID: "3"},
			Comments:   evaluation.Comments{Summary: "ok"},
			Close:      true,
		})
		require.NoError(t, err)
		assert.True(t, out.Closed)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvaluationsClosed))

		before, err := f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		require.True(t, before.Evaluation.Closed)

		// archived PDF under the document number
		rc, err := f.blobs.Get(storage.ActaKey("ACTA-ARICA-COORD-2025-0001"))
		require.NoError(t, err)
		head := make([]byte, 5)
		_, err = io.ReadFull(rc, head)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "%PDF-", string(head))

		// further saves are rejected and change nothing
		_, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{
			Behaviors: map[int64]string{f.b1.ID: "1", f.b2.ID: "1"},
			Comments:  evaluation.Comments{Summary: "changed"},
		})
		assert.ErrorIs(t, err, evaluation.ErrClosed)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClosedMutationRejections))

		after, err := f.svc.Detail(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Responses, after.Responses)
		assert.Equal(t, before.Evaluation.Comments, after.Evaluation.Comments)

		// closing twice is not allowed either
		_, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{Close: true})
		assert.ErrorIs(t, err, evaluation.ErrClosed)

		assert.Equal(t, []string{
			syncx.TypeEvaluationCreated,
			syncx.TypeEvaluationSaved,
			syncx.TypeEvaluationClosed,
			syncx.TypeActaArchived,
		}, f.events.types())
	})
}

func TestSave_UnknownEvaluation(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Save(context.Background(), 42, evaluation.Submission{})
	assert.ErrorIs(t, err, evaluation.ErrNotFound)
	_, err = f.svc.Acta(context.Background(), 42)
	assert.ErrorIs(t, err, evaluation.ErrNotFound)
}

func TestActa(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{
		Behaviors:  map[int64]string{f.b1.ID: "4", f.b2.ID: "5"},
		Objectives: map[int64]string{f.o1.ID: "3"},
	})
	require.NoError(t, err)

	a, err := f.svc.Acta(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTA-ARICA-COORD-2025-0001", a.Number)
	assert.Equal(t, scoring.LevelPartial, a.Level)
	require.Len(t, a.Behaviors, 2)
	assert.Equal(t, "5", a.Behaviors[1].Compliance)
	assert.Equal(t, "Ana Pérez", a.Signatures[1].Name)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	d, err := f.svc.Dashboard(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, d.Period)
	assert.Equal(t, f.period.ID, d.Period.ID)
	require.Len(t, d.Rows, 1)
	assert.Nil(t, d.Rows[0].Evaluation)
	assert.Equal(t, scoring.LevelNoData, d.Rows[0].Result.Level)

	ev, err := f.svc.Open(ctx, f.coord.ID, f.period.ID)
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, ev.ID, evaluation.Submission{Behaviors: map[int64]string{f.b1.ID: "5", f.b2.ID: "5"}})
	require.NoError(t, err)

	d, err = f.svc.Dashboard(ctx, f.period.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Rows[0].Evaluation)
	assert.Equal(t, ev.ID, d.Rows[0].Evaluation.ID)
	assert.Equal(t, scoring.LevelOutstanding, d.Rows[0].Result.Level)

	_, err = f.svc.Dashboard(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
