package kpi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
)

type SQLStore struct {
	db  catalog.DBTX
	now func() time.Time
}

// NewSQLStore accepts a *sql.DB or a *sql.Tx.
func NewSQLStore(db catalog.DBTX) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

/* ------------------------------ Functions ------------------------------- */

// ListFunctions returns functions by code, each with its KPIs by id.
func (s *SQLStore) ListFunctions(ctx context.Context) ([]Function, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, name, description, weight FROM kpi_functions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	var out []Function
	index := map[int64]int{}
	for rows.Next() {
		var f Function
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &f.Description, &f.Weight); err != nil {
			rows.Close()
			return nil, err
		}
		index[f.ID] = len(out)
		out = append(out, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	krows, err := s.db.QueryContext(ctx,
		`SELECT id, function_id, name, target, weight FROM kpis ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer krows.Close()
	for krows.Next() {
		var k KPI
		if err := krows.Scan(&k.ID, &k.FunctionID, &k.Name, &k.Target, &k.Weight); err != nil {
			return nil, err
		}
		if i, ok := index[k.FunctionID]; ok {
			out[i].KPIs = append(out[i].KPIs, k)
		}
	}
	return out, krows.Err()
}

func (s *SQLStore) UpsertFunction(ctx context.Context, f Function) (Function, bool, error) {
	err := s.db.QueryRowContext(ctx, `SELECT id FROM kpi_functions WHERE code=$1`, f.Code).Scan(&f.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.db.QueryRowContext(ctx,
			`INSERT INTO kpi_functions (code, name, description, weight) VALUES ($1,$2,$3,$4) RETURNING id`,
			f.Code, f.Name, f.Description, f.Weight).Scan(&f.ID); err != nil {
			return Function{}, false, fmt.Errorf("create function %s: %w", f.Code, err)
		}
		return f, true, nil
	case err != nil:
		return Function{}, false, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE kpi_functions SET name=$1, description=$2, weight=$3 WHERE id=$4`,
		f.Name, f.Description, f.Weight, f.ID); err != nil {
		return Function{}, false, fmt.Errorf("update function %s: %w", f.Code, err)
	}
	return f, false, nil
}

func (s *SQLStore) UpsertKPI(ctx context.Context, k KPI) (KPI, bool, error) {
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM kpis WHERE function_id=$1 AND name=$2`, k.FunctionID, k.Name).Scan(&k.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.db.QueryRowContext(ctx,
			`INSERT INTO kpis (function_id, name, target, weight) VALUES ($1,$2,$3,$4) RETURNING id`,
			k.FunctionID, k.Name, k.Target, k.Weight).Scan(&k.ID); err != nil {
			return KPI{}, false, fmt.Errorf("create kpi %q: %w", k.Name, err)
		}
		return k, true, nil
	case err != nil:
		return KPI{}, false, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE kpis SET target=$1, weight=$2 WHERE id=$3`, k.Target, k.Weight, k.ID); err != nil {
		return KPI{}, false, fmt.Errorf("update kpi %q: %w", k.Name, err)
	}
	return k, false, nil
}

func (s *SQLStore) GetKPI(ctx context.Context, id int64) (KPI, error) {
	var k KPI
	err := s.db.QueryRowContext(ctx,
		`SELECT id, function_id, name, target, weight FROM kpis WHERE id=$1`, id).
		Scan(&k.ID, &k.FunctionID, &k.Name, &k.Target, &k.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return KPI{}, fmt.Errorf("kpi %d: %w", id, ErrNotFound)
	}
	return k, err
}

/* ------------------------------- Periods -------------------------------- */

// ListPeriods returns periods newest first.
func (s *SQLStore) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, year, month, closed FROM kpi_periods ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Year, &p.Month, &p.Closed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreatePeriod(ctx context.Context, p Period) (Period, error) {
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO kpi_periods (year, month, closed) VALUES ($1,$2,$3) RETURNING id`,
		p.Year, p.Month, p.Closed).Scan(&p.ID); err != nil {
		return Period{}, fmt.Errorf("create period %s: %w", p.Label(), err)
	}
	return p, nil
}

func (s *SQLStore) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := s.db.QueryRowContext(ctx,
		`SELECT id, year, month, closed FROM kpi_periods WHERE id=$1`, id).
		Scan(&p.ID, &p.Year, &p.Month, &p.Closed)
	if errors.Is(err, sql.ErrNoRows) {
		return Period{}, fmt.Errorf("period %d: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *SQLStore) ClosePeriod(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE kpi_periods SET closed=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("close period %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("period %d: %w", id, ErrNotFound)
	}
	return nil
}

/* ----------------------------- Evaluations ------------------------------ */

const evaluationCols = `id, coordinator_id, period_id, created_at, total_score`

func scanEvaluation(row interface{ Scan(...any) error }) (Evaluation, error) {
	var e Evaluation
	var created int64
	if err := row.Scan(&e.ID, &e.CoordinatorID, &e.PeriodID, &created, &e.TotalScore); err != nil {
		return Evaluation{}, err
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func (s *SQLStore) GetOrCreateEvaluation(ctx context.Context, coordinatorID, periodID int64) (Evaluation, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kpi_evaluations (coordinator_id, period_id, created_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (coordinator_id, period_id) DO NOTHING`,
		coordinatorID, periodID, s.now().Unix())
	if err != nil {
		return Evaluation{}, false, fmt.Errorf("create kpi evaluation: %w", err)
	}
	n, _ := res.RowsAffected()
	e, err := s.FindEvaluation(ctx, coordinatorID, periodID)
	if err != nil {
		return Evaluation{}, false, err
	}
	return e, n > 0, nil
}

func (s *SQLStore) FindEvaluation(ctx context.Context, coordinatorID, periodID int64) (Evaluation, error) {
	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationCols+` FROM kpi_evaluations WHERE coordinator_id=$1 AND period_id=$2`,
		coordinatorID, periodID))
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, fmt.Errorf("kpi evaluation (%d, %d): %w", coordinatorID, periodID, ErrNotFound)
	}
	return e, err
}

func (s *SQLStore) GetEvaluation(ctx context.Context, id int64) (Evaluation, error) {
	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationCols+` FROM kpi_evaluations WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, fmt.Errorf("kpi evaluation %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *SQLStore) SetTotalScore(ctx context.Context, id int64, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE kpi_evaluations SET total_score=$1 WHERE id=$2`, score, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("kpi evaluation %d: %w", id, ErrNotFound)
	}
	return nil
}

/* ------------------------------- Results -------------------------------- */

const resultSelect = `SELECT r.id, r.evaluation_id, r.kpi_id, r.value, r.score, k.name, k.target, k.weight
	FROM kpi_results r JOIN kpis k ON k.id = r.kpi_id`

func scanResult(row interface{ Scan(...any) error }) (Result, error) {
	var r Result
	err := row.Scan(&r.ID, &r.EvaluationID, &r.KPIID, &r.Value, &r.Score, &r.KPIName, &r.Target, &r.Weight)
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, evaluationID int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, resultSelect+` WHERE r.evaluation_id=$1 ORDER BY k.id`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetResult(ctx context.Context, id int64) (Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, resultSelect+` WHERE r.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("kpi result %d: %w", id, ErrNotFound)
	}
	return r, err
}

// UpsertResult writes value and score for (evaluation, kpi) and returns the stored row.
func (s *SQLStore) UpsertResult(ctx context.Context, r Result) (Result, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kpi_results (evaluation_id, kpi_id, value, score) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (evaluation_id, kpi_id) DO UPDATE SET value=excluded.value, score=excluded.score`,
		r.EvaluationID, r.KPIID, r.Value, r.Score); err != nil {
		return Result{}, fmt.Errorf("upsert kpi result: %w", err)
	}
	out, err := scanResult(s.db.QueryRowContext(ctx,
		resultSelect+` WHERE r.evaluation_id=$1 AND r.kpi_id=$2`, r.EvaluationID, r.KPIID))
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

/* ------------------------------- Evidence ------------------------------- */

func (s *SQLStore) AddEvidence(ctx context.Context, e Evidence) (Evidence, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO kpi_evidence (result_id, description, blob_key, created_at)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		e.ResultID, e.Description, e.BlobKey, e.CreatedAt.Unix()).Scan(&e.ID); err != nil {
		return Evidence{}, fmt.Errorf("add evidence: %w", err)
	}
	e.CreatedAt = time.Unix(e.CreatedAt.Unix(), 0)
	return e, nil
}

func scanEvidence(row interface{ Scan(...any) error }) (Evidence, error) {
	var e Evidence
	var created int64
	if err := row.Scan(&e.ID, &e.ResultID, &e.Description, &e.BlobKey, &created); err != nil {
		return Evidence{}, err
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func (s *SQLStore) ListEvidence(ctx context.Context, resultID int64) ([]Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, result_id, description, blob_key, created_at FROM kpi_evidence
		 WHERE result_id=$1 ORDER BY id`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetEvidence(ctx context.Context, id int64) (Evidence, error) {
	e, err := scanEvidence(s.db.QueryRowContext(ctx,
		`SELECT id, result_id, description, blob_key, created_at FROM kpi_evidence WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Evidence{}, fmt.Errorf("evidence %d: %w", id, ErrNotFound)
	}
	return e, err
}
