// Package events records domain events in the event_log table and relays them to
// a message broker.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const TypeAttemptGraded = "attempt.graded"

type Event struct {
	Seq         int64           `json:"seq"`
	SiteID      string          `json:"siteId"`
	Type        string          `json:"type"`
	Key         string          `json:"key"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   int64           `json:"createdAt"`
	PublishedAt *int64          `json:"publishedAt,omitempty"`
}

// Execer is satisfied by *sql.DB and *sql.Tx so events can be appended inside the
// transaction that produced them.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

// Append writes e using ex, which may be a transaction.
func (r *EventRepo) Append(ctx context.Context, ex Execer, e Event) error {
	if ex == nil {
		ex = r.db
	}
	site := e.SiteID
	if site == "" {
		site = r.siteID
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, string(e.Data), time.Now().Unix())
	return err
}

// Pending returns unpublished events in append order.
func (r *EventRepo) Pending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE published_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) MarkPublished(ctx context.Context, seq int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE event_log SET published_at=$1 WHERE seq=$2`, time.Now().Unix(), seq)
	return err
}
