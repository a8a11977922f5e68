package evaluation

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

var (
	ErrNotFound = errors.New("evaluation: not found")
	ErrClosed   = errors.New("evaluation: already closed")
)

type Store interface {
	// GetOrCreate returns the evaluation for the pair, creating it on first use.
	GetOrCreate(ctx context.Context, coordinatorID, periodID int64) (ev Evaluation, created bool, err error)
	Get(ctx context.Context, id int64) (Evaluation, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]Evaluation, error)
	Responses(ctx context.Context, id int64) (Responses, error)
	// UpsertResponse and UpdateComments fail with ErrClosed on a closed evaluation.
	UpsertResponse(ctx context.Context, id int64, kind Kind, itemID int64, compliance string) error
	UpdateComments(ctx context.Context, id int64, c Comments) error
	SetScore(ctx context.Context, id int64, score scoring.Value) error
	// Close fails with ErrClosed when the evaluation is not open.
	Close(ctx context.Context, id int64) error
}
