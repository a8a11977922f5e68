// Package evaluation owns the per-period evaluation record, its responses and
// the open/closed lifecycle around them.
package evaluation

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

// Kind selects which response table a value belongs to.
type Kind string

const (
	KindBehavior  Kind = "behavior"
	KindObjective Kind = "objective"
)

type Comments struct {
	Strengths    string `json:"strengths"`
	Improvements string `json:"improvements"`
	Summary      string `json:"summary"`
	Feedback     string `json:"feedback"`
}

func (c Comments) Trimmed() Comments {
	return Comments{
		Strengths:    strings.TrimSpace(c.Strengths),
		Improvements: strings.TrimSpace(c.Improvements),
		Summary:      strings.TrimSpace(c.Summary),
		Feedback:     strings.TrimSpace(c.Feedback),
	}
}

type Evaluation struct {
	ID            int64         `json:"id"`
	CoordinatorID int64         `json:"coordinator_id"`
	PeriodID      int64         `json:"period_id"`
	CreatedAt     time.Time     `json:"created_at"`
	Closed        bool          `json:"closed"`
	Comments      Comments      `json:"comments"`
	ScoreTotal    scoring.Value `json:"score_total"`
}

// Responses holds the raw compliance text keyed by catalog item id.
type Responses struct {
	Behaviors  map[int64]string
	Objectives map[int64]string
}

func NewResponses() Responses {
	return Responses{Behaviors: map[int64]string{}, Objectives: map[int64]string{}}
}

func (r Responses) of(kind Kind) map[int64]string {
	if kind == KindObjective {
		return r.Objectives
	}
	return r.Behaviors
}

// Lookup reports the stored value for an item and whether a row exists.
func (r Responses) Lookup(kind Kind, itemID int64) (string, bool) {
	v, ok := r.of(kind)[itemID]
	return v, ok
}

// Values lists the stored values of one group ordered by item id, so the
// aggregate sums in the same order on every call.
func (r Responses) Values(kind Kind) []string {
	m := r.of(kind)
	out := make([]string, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[id])
	}
	return out
}

// Score runs the aggregation over both groups.
func (r Responses) Score() scoring.Result {
	return scoring.Evaluate(r.Values(KindBehavior), r.Values(KindObjective))
}

// Submission is one form post: raw values keyed by item id, the comments and
// whether the evaluator asked to close. Items absent from the maps count as blank.
type Submission struct {
	Behaviors  map[int64]string
	Objectives map[int64]string
	Comments   Comments
	Close      bool
}
