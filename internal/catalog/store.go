package catalog

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	// ErrReferenced is returned when changing an item that responses already point at.
	ErrReferenced = errors.New("catalog: item is referenced by responses")
)

// ListOpts narrows list queries. Q matches the main label case-insensitively.
type ListOpts struct {
	Q      string
	Offset int
	Limit  int
}

// Reader is what the evaluation flow needs from the catalog.
type Reader interface {
	GetCoordinator(ctx context.Context, id int64) (Coordinator, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListActiveCoordinators(ctx context.Context) ([]Coordinator, error)
	ListPeriods(ctx context.Context, opts ListOpts) ([]Period, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

type Store interface {
	Reader

	CreateCoordinator(ctx context.Context, c Coordinator) (Coordinator, error)
	ListCoordinators(ctx context.Context, opts ListOpts) ([]Coordinator, error)
	UpdateCoordinator(ctx context.Context, c Coordinator) error
	DeleteCoordinator(ctx context.Context, id int64) error
	// UpsertCoordinatorByName matches on full name and reports whether a row was created.
	UpsertCoordinatorByName(ctx context.Context, c Coordinator) (created bool, err error)

	CreatePeriod(ctx context.Context, p Period) (Period, error)
	UpdatePeriod(ctx context.Context, p Period) error
	DeletePeriod(ctx context.Context, id int64) error

	CreateRubric(ctx context.Context, r Rubric) (Rubric, error)
	GetRubric(ctx context.Context, id int64) (Rubric, error)
	ListRubrics(ctx context.Context, opts ListOpts) ([]Rubric, error)
	UpdateRubric(ctx context.Context, r Rubric) error
	DeleteRubric(ctx context.Context, id int64) error

	CreateBehavior(ctx context.Context, b Behavior) (Behavior, error)
	GetBehavior(ctx context.Context, id int64) (Behavior, error)
	ListBehaviors(ctx context.Context, opts ListOpts) ([]Behavior, error)
	UpdateBehavior(ctx context.Context, b Behavior) error
	DeleteBehavior(ctx context.Context, id int64) error

	CreateObjective(ctx context.Context, o Objective) (Objective, error)
	GetObjective(ctx context.Context, id int64) (Objective, error)
	ListObjectives(ctx context.Context, opts ListOpts) ([]Objective, error)
	UpdateObjective(ctx context.Context, o Objective) error
	DeleteObjective(ctx context.Context, id int64) error
}
