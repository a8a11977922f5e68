package kpi

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("kpi: not found")
	ErrPeriodClosed = errors.New("kpi: period is closed")
)

type Store interface {
	ListFunctions(ctx context.Context) ([]Function, error)
	// UpsertFunction matches on code; UpsertKPI on (function, name).
	UpsertFunction(ctx context.Context, f Function) (Function, bool, error)
	UpsertKPI(ctx context.Context, k KPI) (KPI, bool, error)
	GetKPI(ctx context.Context, id int64) (KPI, error)

	ListPeriods(ctx context.Context) ([]Period, error)
	CreatePeriod(ctx context.Context, p Period) (Period, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ClosePeriod(ctx context.Context, id int64) error

	GetOrCreateEvaluation(ctx context.Context, coordinatorID, periodID int64) (Evaluation, bool, error)
	FindEvaluation(ctx context.Context, coordinatorID, periodID int64) (Evaluation, error)
	GetEvaluation(ctx context.Context, id int64) (Evaluation, error)
	SetTotalScore(ctx context.Context, id int64, score float64) error

	ListResults(ctx context.Context, evaluationID int64) ([]Result, error)
	GetResult(ctx context.Context, id int64) (Result, error)
	UpsertResult(ctx context.Context, r Result) (Result, error)

	AddEvidence(ctx context.Context, e Evidence) (Evidence, error)
	ListEvidence(ctx context.Context, resultID int64) ([]Evidence, error)
	GetEvidence(ctx context.Context, id int64) (Evidence, error)
}
