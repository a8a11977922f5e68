package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate applies the idempotent DDL for the given driver.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	// Some drivers reject multi-statement scripts; fall back to one at a time.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("migrate: %s: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS coordinators (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  full_name TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL DEFAULT '',
  campus TEXT NOT NULL DEFAULT 'Arica',
  area TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS periods (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rubrics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS behaviors (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  label TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  expected_level TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL DEFAULT 0,
  rubric_id INTEGER REFERENCES rubrics(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS objectives (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  axis TEXT NOT NULL DEFAULT '',
  label TEXT NOT NULL,
  indicator TEXT NOT NULL DEFAULT '',
  expected_level TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL DEFAULT 0,
  rubric_id INTEGER REFERENCES rubrics(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  coordinator_id INTEGER NOT NULL REFERENCES coordinators(id) ON DELETE CASCADE,
  period_id INTEGER NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  closed BOOLEAN NOT NULL DEFAULT FALSE,
  strengths TEXT NOT NULL DEFAULT '',
  improvements TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL DEFAULT '',
  feedback TEXT NOT NULL DEFAULT '',
  score_total REAL,
  UNIQUE (coordinator_id, period_id)
);

CREATE TABLE IF NOT EXISTS behavior_responses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  evaluation_id INTEGER NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  item_id INTEGER NOT NULL REFERENCES behaviors(id) ON DELETE CASCADE,
  compliance TEXT NOT NULL DEFAULT '',
  UNIQUE (evaluation_id, item_id)
);

CREATE TABLE IF NOT EXISTS objective_responses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  evaluation_id INTEGER NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  item_id INTEGER NOT NULL REFERENCES objectives(id) ON DELETE CASCADE,
  compliance TEXT NOT NULL DEFAULT '',
  UNIQUE (evaluation_id, item_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g. EvaluationClosed
  key TEXT NOT NULL,                         -- natural key: evaluation:<id>
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS event_log_key_idx ON event_log (key);

CREATE TABLE IF NOT EXISTS kpi_functions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kpis (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  function_id INTEGER NOT NULL REFERENCES kpi_functions(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  target REAL NOT NULL,
  weight INTEGER NOT NULL,
  UNIQUE (function_id, name)
);

CREATE TABLE IF NOT EXISTS kpi_periods (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  year INTEGER NOT NULL,
  month INTEGER NOT NULL,
  closed BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (year, month)
);

CREATE TABLE IF NOT EXISTS kpi_evaluations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  coordinator_id INTEGER NOT NULL REFERENCES coordinators(id) ON DELETE CASCADE,
  period_id INTEGER NOT NULL REFERENCES kpi_periods(id) ON DELETE CASCADE,
  created_at INTEGER NOT NULL,
  total_score REAL NOT NULL DEFAULT 0,
  UNIQUE (coordinator_id, period_id)
);

CREATE TABLE IF NOT EXISTS kpi_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  evaluation_id INTEGER NOT NULL REFERENCES kpi_evaluations(id) ON DELETE CASCADE,
  kpi_id INTEGER NOT NULL REFERENCES kpis(id) ON DELETE CASCADE,
  value REAL NOT NULL,
  score REAL NOT NULL DEFAULT 0,
  UNIQUE (evaluation_id, kpi_id)
);

CREATE TABLE IF NOT EXISTS kpi_evidence (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  result_id INTEGER NOT NULL REFERENCES kpi_results(id) ON DELETE CASCADE,
  description TEXT NOT NULL,
  blob_key TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS coordinators (
  id BIGSERIAL PRIMARY KEY,
  full_name TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL DEFAULT '',
  campus TEXT NOT NULL DEFAULT 'Arica',
  area TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS periods (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rubrics (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS behaviors (
  id BIGSERIAL PRIMARY KEY,
  label TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  expected_level TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL DEFAULT 0,
  rubric_id BIGINT REFERENCES rubrics(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS objectives (
  id BIGSERIAL PRIMARY KEY,
  axis TEXT NOT NULL DEFAULT '',
  label TEXT NOT NULL,
  indicator TEXT NOT NULL DEFAULT '',
  expected_level TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL DEFAULT 0,
  rubric_id BIGINT REFERENCES rubrics(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
  id BIGSERIAL PRIMARY KEY,
  coordinator_id BIGINT NOT NULL REFERENCES coordinators(id) ON DELETE CASCADE,
  period_id BIGINT NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  closed BOOLEAN NOT NULL DEFAULT FALSE,
  strengths TEXT NOT NULL DEFAULT '',
  improvements TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL DEFAULT '',
  feedback TEXT NOT NULL DEFAULT '',
  score_total DOUBLE PRECISION,
  UNIQUE (coordinator_id, period_id)
);

CREATE TABLE IF NOT EXISTS behavior_responses (
  id BIGSERIAL PRIMARY KEY,
  evaluation_id BIGINT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  item_id BIGINT NOT NULL REFERENCES behaviors(id) ON DELETE CASCADE,
  compliance TEXT NOT NULL DEFAULT '',
  UNIQUE (evaluation_id, item_id)
);

CREATE TABLE IF NOT EXISTS objective_responses (
  id BIGSERIAL PRIMARY KEY,
  evaluation_id BIGINT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  item_id BIGINT NOT NULL REFERENCES objectives(id) ON DELETE CASCADE,
  compliance TEXT NOT NULL DEFAULT '',
  UNIQUE (evaluation_id, item_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS event_log_key_idx ON event_log (key);

CREATE TABLE IF NOT EXISTS kpi_functions (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kpis (
  id BIGSERIAL PRIMARY KEY,
  function_id BIGINT NOT NULL REFERENCES kpi_functions(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  target DOUBLE PRECISION NOT NULL,
  weight INTEGER NOT NULL,
  UNIQUE (function_id, name)
);

CREATE TABLE IF NOT EXISTS kpi_periods (
  id BIGSERIAL PRIMARY KEY,
  year INTEGER NOT NULL,
  month INTEGER NOT NULL,
  closed BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (year, month)
);

CREATE TABLE IF NOT EXISTS kpi_evaluations (
  id BIGSERIAL PRIMARY KEY,
  coordinator_id BIGINT NOT NULL REFERENCES coordinators(id) ON DELETE CASCADE,
  period_id BIGINT NOT NULL REFERENCES kpi_periods(id) ON DELETE CASCADE,
  created_at BIGINT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  UNIQUE (coordinator_id, period_id)
);

CREATE TABLE IF NOT EXISTS kpi_results (
  id BIGSERIAL PRIMARY KEY,
  evaluation_id BIGINT NOT NULL REFERENCES kpi_evaluations(id) ON DELETE CASCADE,
  kpi_id BIGINT NOT NULL REFERENCES kpis(id) ON DELETE CASCADE,
  value DOUBLE PRECISION NOT NULL,
  score DOUBLE PRECISION NOT NULL DEFAULT 0,
  UNIQUE (evaluation_id, kpi_id)
);

CREATE TABLE IF NOT EXISTS kpi_evidence (
  id BIGSERIAL PRIMARY KEY,
  result_id BIGINT NOT NULL REFERENCES kpi_results(id) ON DELETE CASCADE,
  description TEXT NOT NULL,
  blob_key TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
`
