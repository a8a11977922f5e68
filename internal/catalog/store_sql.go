package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db DBTX
}

func NewSQLStore(db DBTX) *SQLStore {
	return &SQLStore{db: db}
}

const defaultListLimit = 500

type scanner interface {
	Scan(dest ...any) error
}

/* ----------------------------- Coordinators ----------------------------- */

const coordinatorCols = `id, full_name, email, campus, area, is_active`

func scanCoordinator(row scanner) (Coordinator, error) {
	var c Coordinator
	err := row.Scan(&c.ID, &c.FullName, &c.Email, &c.Campus, &c.Area, &c.Active)
	return c, err
}

func (s *SQLStore) CreateCoordinator(ctx context.Context, c Coordinator) (Coordinator, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO coordinators (full_name, email, campus, area, is_active)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		c.FullName, c.Email, c.Campus, c.Area, c.Active).Scan(&c.ID)
	if err != nil {
		return Coordinator{}, fmt.Errorf("create coordinator: %w", err)
	}
	return c, nil
}

func (s *SQLStore) GetCoordinator(ctx context.Context, id int64) (Coordinator, error) {
	c, err := scanCoordinator(s.db.QueryRowContext(ctx,
		`SELECT `+coordinatorCols+` FROM coordinators WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Coordinator{}, fmt.Errorf("coordinator %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *SQLStore) ListCoordinators(ctx context.Context, opts ListOpts) ([]Coordinator, error) {
	var out []Coordinator
	err := s.list(ctx, `SELECT `+coordinatorCols+` FROM coordinators`, "full_name", "full_name", opts,
		func(rows *sql.Rows) error {
			c, err := scanCoordinator(rows)
			out = append(out, c)
			return err
		})
	return out, err
}

func (s *SQLStore) ListActiveCoordinators(ctx context.Context) ([]Coordinator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+coordinatorCols+` FROM coordinators WHERE is_active=$1 ORDER BY full_name`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coordinator
	for rows.Next() {
		c, err := scanCoordinator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateCoordinator(ctx context.Context, c Coordinator) error {
	return s.exec1(ctx, "coordinator", c.ID,
		`UPDATE coordinators SET full_name=$1, email=$2, campus=$3, area=$4, is_active=$5 WHERE id=$6`,
		c.FullName, c.Email, c.Campus, c.Area, c.Active, c.ID)
}

func (s *SQLStore) DeleteCoordinator(ctx context.Context, id int64) error {
	return s.exec1(ctx, "coordinator", id, `DELETE FROM coordinators WHERE id=$1`, id)
}

func (s *SQLStore) UpsertCoordinatorByName(ctx context.Context, c Coordinator) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM coordinators WHERE full_name=$1`, c.FullName).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.CreateCoordinator(ctx, c)
		return err == nil, err
	case err != nil:
		return false, err
	}
	c.ID = id
	return false, s.UpdateCoordinator(ctx, c)
}

/* ------------------------------- Periods -------------------------------- */

func (s *SQLStore) CreatePeriod(ctx context.Context, p Period) (Period, error) {
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO periods (name) VALUES ($1) RETURNING id`, p.Name).Scan(&p.ID); err != nil {
		return Period{}, fmt.Errorf("create period: %w", err)
	}
	return p, nil
}

func (s *SQLStore) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM periods WHERE id=$1`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Period{}, fmt.Errorf("period %d: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPeriods returns periods newest first.
func (s *SQLStore) ListPeriods(ctx context.Context, opts ListOpts) ([]Period, error) {
	var out []Period
	err := s.list(ctx, `SELECT id, name FROM periods`, "name", "id DESC", opts,
		func(rows *sql.Rows) error {
			var p Period
			err := rows.Scan(&p.ID, &p.Name)
			out = append(out, p)
			return err
		})
	return out, err
}

func (s *SQLStore) UpdatePeriod(ctx context.Context, p Period) error {
	return s.exec1(ctx, "period", p.ID, `UPDATE periods SET name=$1 WHERE id=$2`, p.Name, p.ID)
}

func (s *SQLStore) DeletePeriod(ctx context.Context, id int64) error {
	return s.exec1(ctx, "period", id, `DELETE FROM periods WHERE id=$1`, id)
}

/* ------------------------------- Rubrics -------------------------------- */

func (s *SQLStore) CreateRubric(ctx context.Context, r Rubric) (Rubric, error) {
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO rubrics (name, description, url) VALUES ($1,$2,$3) RETURNING id`,
		r.Name, r.Description, r.URL).Scan(&r.ID); err != nil {
		return Rubric{}, fmt.Errorf("create rubric: %w", err)
	}
	return r, nil
}

func (s *SQLStore) GetRubric(ctx context.Context, id int64) (Rubric, error) {
	var r Rubric
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, url FROM rubrics WHERE id=$1`, id).
		Scan(&r.ID, &r.Name, &r.Description, &r.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return Rubric{}, fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *SQLStore) ListRubrics(ctx context.Context, opts ListOpts) ([]Rubric, error) {
	var out []Rubric
	err := s.list(ctx, `SELECT id, name, description, url FROM rubrics`, "name", "id", opts,
		func(rows *sql.Rows) error {
			var r Rubric
			err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.URL)
			out = append(out, r)
			return err
		})
	return out, err
}

func (s *SQLStore) UpdateRubric(ctx context.Context, r Rubric) error {
	return s.exec1(ctx, "rubric", r.ID,
		`UPDATE rubrics SET name=$1, description=$2, url=$3 WHERE id=$4`, r.Name, r.Description, r.URL, r.ID)
}

func (s *SQLStore) DeleteRubric(ctx context.Context, id int64) error {
	return s.exec1(ctx, "rubric", id, `DELETE FROM rubrics WHERE id=$1`, id)
}

/* ------------------------------ Behaviors ------------------------------- */

const behaviorCols = `id, label, description, expected_level, weight, rubric_id`

func scanBehavior(row scanner) (Behavior, error) {
	var b Behavior
	var rubric sql.NullInt64
	if err := row.Scan(&b.ID, &b.Label, &b.Description, &b.ExpectedLevel, &b.Weight, &rubric); err != nil {
		return Behavior{}, err
	}
	b.RubricID = fromNull(rubric)
	return b, nil
}

func (s *SQLStore) CreateBehavior(ctx context.Context, b Behavior) (Behavior, error) {
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO behaviors (label, description, expected_level, weight, rubric_id)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		b.Label, b.Description, b.ExpectedLevel, b.Weight, toNull(b.RubricID)).Scan(&b.ID); err != nil {
		return Behavior{}, fmt.Errorf("create behavior: %w", err)
	}
	return b, nil
}

func (s *SQLStore) GetBehavior(ctx context.Context, id int64) (Behavior, error) {
	b, err := scanBehavior(s.db.QueryRowContext(ctx, `SELECT `+behaviorCols+` FROM behaviors WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Behavior{}, fmt.Errorf("behavior %d: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *SQLStore) ListBehaviors(ctx context.Context, opts ListOpts) ([]Behavior, error) {
	var out []Behavior
	err := s.list(ctx, `SELECT `+behaviorCols+` FROM behaviors`, "label", "id", opts,
		func(rows *sql.Rows) error {
			b, err := scanBehavior(rows)
			out = append(out, b)
			return err
		})
	return out, err
}

func (s *SQLStore) UpdateBehavior(ctx context.Context, b Behavior) error {
	if err := s.ensureUnreferenced(ctx, "behavior_responses", b.ID); err != nil {
		return err
	}
	return s.exec1(ctx, "behavior", b.ID,
		`UPDATE behaviors SET label=$1, description=$2, expected_level=$3, weight=$4, rubric_id=$5 WHERE id=$6`,
		b.Label, b.Description, b.ExpectedLevel, b.Weight, toNull(b.RubricID), b.ID)
}

func (s *SQLStore) DeleteBehavior(ctx context.Context, id int64) error {
	if err := s.ensureUnreferenced(ctx, "behavior_responses", id); err != nil {
		return err
	}
	return s.exec1(ctx, "behavior", id, `DELETE FROM behaviors WHERE id=$1`, id)
}

/* ------------------------------ Objectives ------------------------------ */

const objectiveCols = `id, axis, label, indicator, expected_level, weight, rubric_id`

func scanObjective(row scanner) (Objective, error) {
	var o Objective
	var rubric sql.NullInt64
	if err := row.Scan(&o.ID, &o.Axis, &o.Label, &o.Indicator, &o.ExpectedLevel, &o.Weight, &rubric); err != nil {
		return Objective{}, err
	}
	o.RubricID = fromNull(rubric)
	return o, nil
}

func (s *SQLStore) CreateObjective(ctx context.Context, o Objective) (Objective, error) {
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO objectives (axis, label, indicator, expected_level, weight, rubric_id)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.Axis, o.Label, o.Indicator, o.ExpectedLevel, o.Weight, toNull(o.RubricID)).Scan(&o.ID); err != nil {
		return Objective{}, fmt.Errorf("create objective: %w", err)
	}
	return o, nil
}

func (s *SQLStore) GetObjective(ctx context.Context, id int64) (Objective, error) {
	o, err := scanObjective(s.db.QueryRowContext(ctx, `SELECT `+objectiveCols+` FROM objectives WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Objective{}, fmt.Errorf("objective %d: %w", id, ErrNotFound)
	}
	return o, err
}

func (s *SQLStore) ListObjectives(ctx context.Context, opts ListOpts) ([]Objective, error) {
	var out []Objective
	err := s.list(ctx, `SELECT `+objectiveCols+` FROM objectives`, "label", "id", opts,
		func(rows *sql.Rows) error {
			o, err := scanObjective(rows)
			out = append(out, o)
			return err
		})
	return out, err
}

func (s *SQLStore) UpdateObjective(ctx context.Context, o Objective) error {
	if err := s.ensureUnreferenced(ctx, "objective_responses", o.ID); err != nil {
		return err
	}
	return s.exec1(ctx, "objective", o.ID,
		`UPDATE objectives SET axis=$1, label=$2, indicator=$3, expected_level=$4, weight=$5, rubric_id=$6 WHERE id=$7`,
		o.Axis, o.Label, o.Indicator, o.ExpectedLevel, o.Weight, toNull(o.RubricID), o.ID)
}

func (s *SQLStore) DeleteObjective(ctx context.Context, id int64) error {
	if err := s.ensureUnreferenced(ctx, "objective_responses", id); err != nil {
		return err
	}
	return s.exec1(ctx, "objective", id, `DELETE FROM objectives WHERE id=$1`, id)
}

/* ------------------------------- Snapshot ------------------------------- */

// Snapshot loads every behavior and objective ordered by id, without the list cap.
func (s *SQLStore) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.all(ctx, `SELECT `+behaviorCols+` FROM behaviors ORDER BY id`, func(rows *sql.Rows) error {
		b, err := scanBehavior(rows)
		snap.Behaviors = append(snap.Behaviors, b)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot behaviors: %w", err)
	}
	err = s.all(ctx, `SELECT `+objectiveCols+` FROM objectives ORDER BY id`, func(rows *sql.Rows) error {
		o, err := scanObjective(rows)
		snap.Objectives = append(snap.Objectives, o)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot objectives: %w", err)
	}
	return snap, nil
}

/* ------------------------------- Helpers -------------------------------- */

func (s *SQLStore) list(ctx context.Context, base, searchCol, orderBy string, opts ListOpts, scan func(*sql.Rows) error) error {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	q := base + ` WHERE ($1 = '' OR LOWER(` + searchCol + `) LIKE '%' || LOWER($1) || '%')` +
		` ORDER BY ` + orderBy + ` LIMIT $2 OFFSET $3`
	return s.all(ctx, q, scan, strings.TrimSpace(opts.Q), limit, offset)
}

func (s *SQLStore) all(ctx context.Context, q string, scan func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// exec1 runs a statement that must touch exactly one row.
func (s *SQLStore) exec1(ctx context.Context, what string, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %d: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) ensureUnreferenced(ctx context.Context, table string, id int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE item_id=$1`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("item %d has %d responses: %w", id, n, ErrReferenced)
	}
	return nil
}

func toNull(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func fromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
