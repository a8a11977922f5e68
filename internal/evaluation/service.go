package evaluation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/observability"
	"github.com/mind-engage/mindengage-mgd/internal/report"
	"github.com/mind-engage/mindengage-mgd/internal/scoring"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

// Service runs the evaluation lifecycle. Events, Blobs, Metrics and Log are optional.
type Service struct {
	Catalog catalog.Reader
	Store   Store
	Events  syncx.Appender
	Blobs   storage.BlobStore
	Metrics *observability.Metrics
	Options report.Options
	Log     *zap.Logger

	// ArchiveActas stores the PDF in Blobs when an evaluation closes.
	ArchiveActas bool
	Now          func() time.Time
}

// Detail is one evaluation with everything needed to show or print it.
type Detail struct {
	Evaluation  Evaluation
	Coordinator catalog.Coordinator
	Period      catalog.Period
	Catalog     catalog.Snapshot
	Responses   Responses
	Result      scoring.Result
}

// Outcome reports what a Save did.
type Outcome struct {
	Written int
	Closed  bool
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Open returns the evaluation for (coordinator, period), creating it on first
// access. Unknown ids and inactive coordinators fail with catalog.ErrNotFound.
func (s *Service) Open(ctx context.Context, coordinatorID, periodID int64) (Evaluation, error) {
	c, err := s.Catalog.GetCoordinator(ctx, coordinatorID)
	if err != nil {
		return Evaluation{}, err
	}
	if !c.Active {
		return Evaluation{}, fmt.Errorf("coordinator %d is inactive: %w", coordinatorID, catalog.ErrNotFound)
	}
	if _, err := s.Catalog.GetPeriod(ctx, periodID); err != nil {
		return Evaluation{}, err
	}
	ev, created, err := s.Store.GetOrCreate(ctx, coordinatorID, periodID)
	if err != nil {
		return Evaluation{}, err
	}
	if created {
		s.log().Info("evaluation created",
			zap.Int64("evaluation_id", ev.ID),
			zap.Int64("coordinator_id", coordinatorID),
			zap.Int64("period_id", periodID))
		s.appendEvent(ctx, syncx.TypeEvaluationCreated, ev.ID, map[string]int64{
			"coordinator_id": coordinatorID,
			"period_id":      periodID,
		})
	}
	return ev, nil
}

// Detail loads an evaluation with its subject, period, catalog and score.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	ev, err := s.Store.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Evaluation: ev}
	if d.Coordinator, err = s.Catalog.GetCoordinator(ctx, ev.CoordinatorID); err != nil {
		return Detail{}, err
	}
	if d.Period, err = s.Catalog.GetPeriod(ctx, ev.PeriodID); err != nil {
		return Detail{}, err
	}
	if d.Catalog, err = s.Catalog.Snapshot(ctx); err != nil {
		return Detail{}, err
	}
	if d.Responses, err = s.Store.Responses(ctx, id); err != nil {
		return Detail{}, err
	}
	d.Result = d.Responses.Score()
	return d, nil
}

// Save applies one form submission. A closed evaluation is left untouched and
// ErrClosed is returned. Blank values only overwrite rows that already exist.
func (s *Service) Save(ctx context.Context, id int64, sub Submission) (Outcome, error) {
	ev, err := s.Store.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if ev.Closed {
		s.Metrics.ClosedMutationRejected()
		s.log().Warn("save rejected: evaluation closed", zap.Int64("evaluation_id", id))
		return Outcome{}, fmt.Errorf("evaluation %d: %w", id, ErrClosed)
	}

	snap, err := s.Catalog.Snapshot(ctx)
	if err != nil {
		return Outcome{}, err
	}
	existing, err := s.Store.Responses(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	write := func(kind Kind, itemID int64, raw string) error {
		v := strings.TrimSpace(raw)
		if _, ok := existing.Lookup(kind, itemID); v == "" && !ok {
			return nil
		}
		if err := s.Store.UpsertResponse(ctx, id, kind, itemID, v); err != nil {
			return err
		}
		out.Written++
		return nil
	}
	for _, b := range snap.Behaviors {
		if err := write(KindBehavior, b.ID, sub.Behaviors[b.ID]); err != nil {
			return out, s.rejected(id, err)
		}
	}
	for _, o := range snap.Objectives {
		if err := write(KindObjective, o.ID, sub.Objectives[o.ID]); err != nil {
			return out, s.rejected(id, err)
		}
	}
	if err := s.Store.UpdateComments(ctx, id, sub.Comments.Trimmed()); err != nil {
		return out, s.rejected(id, err)
	}

	current, err := s.Store.Responses(ctx, id)
	if err != nil {
		return out, err
	}
	res := current.Score()
	if err := s.Store.SetScore(ctx, id, res.Score); err != nil {
		return out, err
	}
	s.appendEvent(ctx, syncx.TypeEvaluationSaved, id, map[string]any{
		"written": out.Written,
		"score":   res.Score,
	})

	if sub.Close {
		if err := s.Store.Close(ctx, id); err != nil {
			return out, s.rejected(id, err)
		}
		out.Closed = true
		s.Metrics.EvaluationClosed()
		s.log().Info("evaluation closed",
			zap.Int64("evaluation_id", id),
			zap.String("score", res.Score.Format(2)),
			zap.String("level", res.Level.String()))
		s.appendEvent(ctx, syncx.TypeEvaluationClosed, id, map[string]any{
			"score":      res.Score,
			"equivalent": res.Equivalent,
			"level":      res.Level.String(),
		})
		s.archive(ctx, id)
	}
	return out, nil
}

// Acta composes the document for an evaluation, signed now.
func (s *Service) Acta(ctx context.Context, id int64) (report.Acta, error) {
	d, err := s.Detail(ctx, id)
	if err != nil {
		return report.Acta{}, err
	}
	return report.Compose(d.ReportInput(), s.Options, s.now()), nil
}

// ReportInput adapts a Detail for the composer.
func (d Detail) ReportInput() report.Input {
	c := d.Evaluation.Comments
	return report.Input{
		EvaluationID: d.Evaluation.ID,
		Coordinator:  d.Coordinator,
		Period:       d.Period,
		CreatedAt:    d.Evaluation.CreatedAt,
		Closed:       d.Evaluation.Closed,
		Catalog:      d.Catalog,
		Behaviors:    d.Responses.Behaviors,
		Objectives:   d.Responses.Objectives,
		Strengths:    c.Strengths,
		Improvements: c.Improvements,
		Summary:      c.Summary,
		Feedback:     c.Feedback,
		Result:       d.Result,
	}
}

// archive stores the closed acta as PDF. Failures are logged, not returned.
func (s *Service) archive(ctx context.Context, id int64) {
	if !s.ArchiveActas || s.Blobs == nil {
		return
	}
	a, err := s.Acta(ctx, id)
	if err != nil {
		s.log().Error("archive acta: compose", zap.Int64("evaluation_id", id), zap.Error(err))
		return
	}
	var buf bytes.Buffer
	if err := report.WritePDF(&buf, a); err != nil {
		s.log().Error("archive acta: render", zap.Int64("evaluation_id", id), zap.Error(err))
		return
	}
	key, err := s.Blobs.Put(storage.ActaKey(a.Number), &buf)
	if err != nil {
		s.log().Error("archive acta: store", zap.Int64("evaluation_id", id), zap.Error(err))
		return
	}
	s.Metrics.ActaRendered("pdf")
	s.appendEvent(ctx, syncx.TypeActaArchived, id, map[string]string{"key": key, "number": a.Number})
}

func (s *Service) rejected(id int64, err error) error {
	if errors.Is(err, ErrClosed) {
		s.Metrics.ClosedMutationRejected()
	}
	return err
}

func (s *Service) appendEvent(ctx context.Context, typ string, id int64, data any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Append(ctx, syncx.NewEvent(typ, syncx.EvaluationKey(id), data)); err != nil {
		s.log().Warn("append event", zap.String("type", typ), zap.Int64("evaluation_id", id), zap.Error(err))
	}
}
