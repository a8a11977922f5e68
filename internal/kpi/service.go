package kpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

// Service records KPI results for coordinators. Blobs, Events and Log are optional.
type Service struct {
	Store        Store
	Coordinators catalog.Reader
	Blobs        storage.BlobStore
	Events       syncx.Appender
	Log          *zap.Logger
}

// Scorecard is one evaluation with its results.
type Scorecard struct {
	Evaluation Evaluation `json:"evaluation"`
	Period     Period     `json:"period"`
	Results    []Result   `json:"results"`
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// OpenEvaluation returns the evaluation for (coordinator, period), creating
// it on first access. Creating one in a closed period fails with ErrPeriodClosed.
func (s *Service) OpenEvaluation(ctx context.Context, coordinatorID, periodID int64) (Evaluation, bool, error) {
	if s.Coordinators != nil {
		if _, err := s.Coordinators.GetCoordinator(ctx, coordinatorID); err != nil {
			return Evaluation{}, false, err
		}
	}
	p, err := s.Store.GetPeriod(ctx, periodID)
	if err != nil {
		return Evaluation{}, false, err
	}
	if p.Closed {
		// Existing evaluations stay readable; no new ones are opened.
		ev, err := s.Store.FindEvaluation(ctx, coordinatorID, periodID)
		if errors.Is(err, ErrNotFound) {
			return Evaluation{}, false, fmt.Errorf("period %s: %w", p.Label(), ErrPeriodClosed)
		}
		return ev, false, err
	}
	ev, created, err := s.Store.GetOrCreateEvaluation(ctx, coordinatorID, periodID)
	if err != nil {
		return Evaluation{}, false, err
	}
	if created {
		s.log().Info("kpi evaluation created",
			zap.Int64("evaluation_id", ev.ID),
			zap.Int64("coordinator_id", coordinatorID),
			zap.String("period", p.Label()))
	}
	return ev, created, nil
}

// Scorecard loads an evaluation, its period and its results.
func (s *Service) Scorecard(ctx context.Context, evaluationID int64) (Scorecard, error) {
	ev, err := s.Store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Scorecard{}, err
	}
	p, err := s.Store.GetPeriod(ctx, ev.PeriodID)
	if err != nil {
		return Scorecard{}, err
	}
	results, err := s.Store.ListResults(ctx, evaluationID)
	if err != nil {
		return Scorecard{}, err
	}
	return Scorecard{Evaluation: ev, Period: p, Results: results}, nil
}

// RecordResult stores the measured value of one KPI, scores it against the
// target and recomputes the evaluation's weighted total.
func (s *Service) RecordResult(ctx context.Context, evaluationID, kpiID int64, value float64) (Result, Evaluation, error) {
	ev, err := s.Store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Result{}, Evaluation{}, err
	}
	if err := s.ensureOpen(ctx, ev.PeriodID); err != nil {
		return Result{}, Evaluation{}, err
	}
	k, err := s.Store.GetKPI(ctx, kpiID)
	if err != nil {
		return Result{}, Evaluation{}, err
	}
	r, err := s.Store.UpsertResult(ctx, Result{
		EvaluationID: evaluationID,
		KPIID:        kpiID,
		Value:        value,
		Score:        ResultScore(value, k.Target),
	})
	if err != nil {
		return Result{}, Evaluation{}, err
	}
	results, err := s.Store.ListResults(ctx, evaluationID)
	if err != nil {
		return Result{}, Evaluation{}, err
	}
	ev.TotalScore = TotalScore(results)
	if err := s.Store.SetTotalScore(ctx, evaluationID, ev.TotalScore); err != nil {
		return Result{}, Evaluation{}, err
	}

	s.log().Info("kpi result recorded",
		zap.Int64("evaluation_id", evaluationID),
		zap.Int64("kpi_id", kpiID),
		zap.Float64("score", r.Score),
		zap.Float64("total_score", ev.TotalScore))
	if s.Events != nil {
		e := syncx.NewEvent(syncx.TypeKPIResultRecorded, syncx.KPIEvaluationKey(evaluationID), map[string]any{
			"kpi_id":      kpiID,
			"value":       value,
			"score":       r.Score,
			"total_score": ev.TotalScore,
		})
		if err := s.Events.Append(ctx, e); err != nil {
			s.log().Warn("append event failed", zap.Error(err))
		}
	}
	return r, ev, nil
}

// AddEvidence attaches a description and, when file is non-nil, an uploaded
// file to a result.
func (s *Service) AddEvidence(ctx context.Context, resultID int64, description, filename string, file io.Reader) (Evidence, error) {
	r, err := s.Store.GetResult(ctx, resultID)
	if err != nil {
		return Evidence{}, err
	}
	ev, err := s.Store.GetEvaluation(ctx, r.EvaluationID)
	if err != nil {
		return Evidence{}, err
	}
	if err := s.ensureOpen(ctx, ev.PeriodID); err != nil {
		return Evidence{}, err
	}

	e := Evidence{ResultID: resultID, Description: strings.TrimSpace(description)}
	if file != nil {
		if s.Blobs == nil {
			return Evidence{}, fmt.Errorf("evidence upload: no blob store configured")
		}
		key := storage.EvidenceKey(resultID, uuid.NewString()+strings.ToLower(path.Ext(filename)))
		if e.BlobKey, err = s.Blobs.Put(key, file); err != nil {
			return Evidence{}, fmt.Errorf("evidence upload: %w", err)
		}
	}
	return s.Store.AddEvidence(ctx, e)
}

func (s *Service) ListEvidence(ctx context.Context, resultID int64) ([]Evidence, error) {
	if _, err := s.Store.GetResult(ctx, resultID); err != nil {
		return nil, err
	}
	return s.Store.ListEvidence(ctx, resultID)
}

// EvidenceFile opens the stored upload of an evidence record. Records without
// a file fail with ErrNotFound.
func (s *Service) EvidenceFile(ctx context.Context, evidenceID int64) (io.ReadCloser, Evidence, error) {
	e, err := s.Store.GetEvidence(ctx, evidenceID)
	if err != nil {
		return nil, Evidence{}, err
	}
	if e.BlobKey == "" || s.Blobs == nil {
		return nil, Evidence{}, fmt.Errorf("evidence %d has no file: %w", evidenceID, ErrNotFound)
	}
	rc, err := s.Blobs.Get(e.BlobKey)
	if err != nil {
		return nil, Evidence{}, err
	}
	return rc, e, nil
}

func (s *Service) ClosePeriod(ctx context.Context, id int64) error {
	if err := s.Store.ClosePeriod(ctx, id); err != nil {
		return err
	}
	s.log().Info("kpi period closed", zap.Int64("period_id", id))
	return nil
}

func (s *Service) ensureOpen(ctx context.Context, periodID int64) error {
	p, err := s.Store.GetPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	if p.Closed {
		return fmt.Errorf("period %s: %w", p.Label(), ErrPeriodClosed)
	}
	return nil
}
