// Package activity records a durable feed of notable system actions, such
// as learned answers, background learning passes, and threshold changes.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/protype-ai/protype/internal/store"
)

// Event is one recorded action.
type Event struct {
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
}

// Log appends events to the activity_log table and reads them back newest
// first. Safe for concurrent use.
type Log struct {
	db     *store.DB
	logger *slog.Logger
}

// NewLog creates a Log. logger may be nil.
func NewLog(db *store.DB, logger *slog.Logger) (*Log, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{db: db, logger: logger}, nil
}

// Record appends one event. Failures are reported to the caller; most call
// sites log and continue since the feed is advisory.
func (l *Log) Record(ctx context.Context, source, action, description string) error {
	if source == "" {
		source = "system"
	}
	if action == "" {
		return fmt.Errorf("action is required")
	}

	_, err := l.db.SQL.ExecContext(ctx, l.db.Rebind(
		`INSERT INTO activity_log (created_at, source, action, description)
		 VALUES (?, ?, ?, ?)`),
		time.Now().UTC(), source, action, description)
	if err != nil {
		return fmt.Errorf("recording activity %q: %w", action, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.SQL.QueryContext(ctx, l.db.Rebind(
		`SELECT created_at, source, action, description FROM activity_log
		 ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.CreatedAt, &e.Source, &e.Action, &e.Description); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return events, nil
}
