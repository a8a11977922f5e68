package evaluation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const evaluationCols = `id, coordinator_id, period_id, created_at, closed,
	strengths, improvements, summary, feedback, score_total`

func scanEvaluation(row interface{ Scan(...any) error }) (Evaluation, error) {
	var (
		e       Evaluation
		created int64
		score   sql.NullFloat64
	)
	err := row.Scan(&e.ID, &e.CoordinatorID, &e.PeriodID, &created, &e.Closed,
		&e.Comments.Strengths, &e.Comments.Improvements, &e.Comments.Summary, &e.Comments.Feedback, &score)
	if err != nil {
		return Evaluation{}, err
	}
	e.CreatedAt = time.Unix(created, 0)
	if score.Valid {
		e.ScoreTotal = scoring.Some(score.Float64)
	}
	return e, nil
}

func (s *SQLStore) GetOrCreate(ctx context.Context, coordinatorID, periodID int64) (Evaluation, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (coordinator_id, period_id, created_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (coordinator_id, period_id) DO NOTHING`,
		coordinatorID, periodID, s.now().Unix())
	if err != nil {
		return Evaluation{}, false, fmt.Errorf("create evaluation: %w", err)
	}
	n, _ := res.RowsAffected()

	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationCols+` FROM evaluations WHERE coordinator_id=$1 AND period_id=$2`,
		coordinatorID, periodID))
	if err != nil {
		return Evaluation{}, false, err
	}
	return e, n > 0, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Evaluation, error) {
	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationCols+` FROM evaluations WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *SQLStore) ListByPeriod(ctx context.Context, periodID int64) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationCols+` FROM evaluations WHERE period_id=$1 ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Responses(ctx context.Context, id int64) (Responses, error) {
	out := NewResponses()
	for _, kind := range []Kind{KindBehavior, KindObjective} {
		rows, err := s.db.QueryContext(ctx,
			`SELECT item_id, compliance FROM `+responseTable(kind)+` WHERE evaluation_id=$1`, id)
		if err != nil {
			return Responses{}, err
		}
		m := out.of(kind)
		for rows.Next() {
			var item int64
			var v string
			if err := rows.Scan(&item, &v); err != nil {
				rows.Close()
				return Responses{}, err
			}
			m[item] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return Responses{}, err
		}
	}
	return out, nil
}

// UpsertResponse writes only while the evaluation is open; the closed check and
// the write are a single statement.
func (s *SQLStore) UpsertResponse(ctx context.Context, id int64, kind Kind, itemID int64, compliance string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+responseTable(kind)+` (evaluation_id, item_id, compliance)
		 SELECT CAST($1 AS BIGINT), CAST($2 AS BIGINT), CAST($3 AS TEXT)
		 WHERE EXISTS (SELECT 1 FROM evaluations WHERE id=$1 AND closed=FALSE)
		 ON CONFLICT (evaluation_id, item_id) DO UPDATE SET compliance=excluded.compliance`,
		id, itemID, compliance)
	if err != nil {
		return fmt.Errorf("upsert %s response: %w", kind, err)
	}
	return s.checkOpenWrite(ctx, id, res)
}

func (s *SQLStore) UpdateComments(ctx context.Context, id int64, c Comments) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evaluations SET strengths=$1, improvements=$2, summary=$3, feedback=$4
		 WHERE id=$5 AND closed=FALSE`,
		c.Strengths, c.Improvements, c.Summary, c.Feedback, id)
	if err != nil {
		return fmt.Errorf("update comments: %w", err)
	}
	return s.checkOpenWrite(ctx, id, res)
}

func (s *SQLStore) SetScore(ctx context.Context, id int64, score scoring.Value) error {
	var v sql.NullFloat64
	if score.Valid {
		v = sql.NullFloat64{Float64: score.Float, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE evaluations SET score_total=$1 WHERE id=$2`, v, id)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) Close(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE evaluations SET closed=TRUE WHERE id=$1 AND closed=FALSE`, id)
	if err != nil {
		return fmt.Errorf("close evaluation: %w", err)
	}
	return s.checkOpenWrite(ctx, id, res)
}

// checkOpenWrite tells a missing evaluation apart from a closed one when a
// guarded statement touched nothing.
func (s *SQLStore) checkOpenWrite(ctx context.Context, id int64, res sql.Result) error {
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("evaluation %d: %w", id, ErrClosed)
}

func responseTable(kind Kind) string {
	if kind == KindObjective {
		return "objective_responses"
	}
	return "behavior_responses"
}
