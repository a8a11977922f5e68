// Package syncx keeps the append-only audit trail of evaluation events.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeEvaluationCreated = "EvaluationCreated"
	TypeEvaluationSaved   = "EvaluationSaved"
	TypeEvaluationClosed  = "EvaluationClosed"
	TypeActaArchived      = "ActaArchived"
	TypeKPIResultRecorded = "KPIResultRecorded"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// Appender is the write side used by services.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// EvaluationKey is the natural key events for one evaluation are filed under.
func EvaluationKey(id int64) string { return fmt.Sprintf("evaluation:%d", id) }

func KPIEvaluationKey(id int64) string { return fmt.Sprintf("kpi-evaluation:%d", id) }

// NewEvent marshals data into an event. Marshal failures degrade to "{}".
func NewEvent(typ, key string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil || data == nil {
		raw = []byte("{}")
	}
	return Event{Type: typ, Key: key, Data: raw}
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	site := e.SiteID
	if site == "" {
		site = r.siteID
	}
	data := string(e.Data)
	if data == "" {
		data = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, data, r.now().Unix())
	return err
}

// List returns events in append order. An empty key lists everything.
func (r *EventRepo) List(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE ($1 = '' OR key = $1) ORDER BY seq LIMIT $2`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
