// Package reinforce tracks answer outcomes and adapts the confidence
// threshold the retrieval chain uses. It also owns the bounded-retry queue
// of questions that exhausted every tier.
//
// Everything here is best-effort bookkeeping: methods on the request path
// log and continue on internal error and never abort the caller.
package reinforce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/store"
)

const (
	maxAttempts = 3

	// Threshold adjustment policy: only with enough signal, in small
	// steps, inside a fixed band.
	minEvents       = 10
	lowSuccessRate  = 0.6
	highSuccessRate = 0.9
	thresholdStep   = 0.05
	thresholdFloor  = 0.6
	thresholdCap    = 0.9

	defaultCategory  = "default"
	defaultThreshold = 0.7
)

// Researcher retries an unanswered question through the expensive tier.
// A nil error means the question now has a stored answer.
type Researcher interface {
	Research(ctx context.Context, question string) error
}

// Tracker records reinforcement events and maintains thresholds.
type Tracker struct {
	db       *store.DB
	activity *activity.Log
	logger   *slog.Logger
}

// New creates a Tracker. activityLog may be nil; logger may be nil.
func New(db *store.DB, activityLog *activity.Log, logger *slog.Logger) (*Tracker, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{db: db, activity: activityLog, logger: logger}, nil
}

// RecordSuccess appends a success event.
func (t *Tracker) RecordSuccess(ctx context.Context, question, _ string, confidence float64) {
	t.appendEvent(ctx, question, "success", confidence, "")
}

// RecordFailure appends a failure event and queues the question for retry.
// The attempted answer, if any, is folded into the feedback text.
func (t *Tracker) RecordFailure(ctx context.Context, question, attempted, feedback string) {
	if attempted != "" {
		feedback = strings.TrimSpace("attempted: " + attempted + "; " + feedback)
	}
	t.appendEvent(ctx, question, "failure", 0, feedback)
	if err := t.EnqueueUnanswered(ctx, question); err != nil {
		t.logger.Warn("enqueue unanswered failed", "question", question, "error", err)
	}
}

func (t *Tracker) appendEvent(ctx context.Context, question, outcome string, confidence float64, feedback string) {
	_, err := t.db.SQL.ExecContext(ctx, t.db.Rebind(
		`INSERT INTO reinforcement_events (created_at, question, outcome, confidence, feedback)
		 VALUES (?, ?, ?, ?, ?)`),
		time.Now().UTC(), store.Normalize(question), outcome, confidence, feedback)
	if err != nil {
		t.logger.Warn("recording reinforcement event failed", "outcome", outcome, "error", err)
	}
}

// EnqueueUnanswered inserts a question into the retry queue, deduplicated
// by normalized text. Re-enqueueing an existing question is a no-op.
func (t *Tracker) EnqueueUnanswered(ctx context.Context, question string) error {
	key := store.Normalize(question)
	if key == "" {
		return fmt.Errorf("question is required")
	}

	_, err := t.db.SQL.ExecContext(ctx, t.db.Rebind(
		`INSERT INTO unanswered_questions (question, created_at, attempts, resolved)
		 VALUES (?, ?, 0, ?)
		 ON CONFLICT (question) DO NOTHING`),
		key, time.Now().UTC(), false)
	if err != nil {
		return fmt.Errorf("enqueueing %q: %w", key, err)
	}
	return nil
}

// Unanswered is one queued question.
type Unanswered struct {
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	Resolved  bool      `json:"resolved"`
}

// PendingUnanswered lists queue entries still eligible for retry, fewest
// attempts first.
func (t *Tracker) PendingUnanswered(ctx context.Context, limit int) ([]Unanswered, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := t.db.SQL.QueryContext(ctx, t.db.Rebind(
		`SELECT question, created_at, attempts, resolved FROM unanswered_questions
		 WHERE resolved = ? AND attempts < ?
		 ORDER BY attempts ASC, created_at ASC
		 LIMIT ?`), false, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unanswered: %w", err)
	}
	defer rows.Close()

	var out []Unanswered
	for rows.Next() {
		var u Unanswered
		if err := rows.Scan(&u.Question, &u.CreatedAt, &u.Attempts, &u.Resolved); err != nil {
			return nil, fmt.Errorf("scanning unanswered: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unanswered: %w", err)
	}
	return out, nil
}

// ProcessUnanswered dispatches up to maxBatch queued questions through the
// researcher. Attempts are incremented before each dispatch, so a question
// that keeps failing ages out of the queue after maxAttempts tries.
// Returns how many were dispatched and how many resolved.
func (t *Tracker) ProcessUnanswered(ctx context.Context, maxBatch int, r Researcher) (processed, resolved int, err error) {
	if r == nil {
		return 0, 0, fmt.Errorf("researcher is required")
	}
	pending, err := t.PendingUnanswered(ctx, maxBatch)
	if err != nil {
		return 0, 0, err
	}

	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			return processed, resolved, err
		}

		if _, err := t.db.SQL.ExecContext(ctx, t.db.Rebind(
			`UPDATE unanswered_questions SET attempts = attempts + 1 WHERE question = ?`),
			u.Question); err != nil {
			t.logger.Warn("incrementing attempts failed", "question", u.Question, "error", err)
			continue
		}
		processed++

		if err := r.Research(ctx, u.Question); err != nil {
			t.logger.Debug("retry failed", "question", u.Question, "attempt", u.Attempts+1, "error", err)
			continue
		}

		if _, err := t.db.SQL.ExecContext(ctx, t.db.Rebind(
			`UPDATE unanswered_questions SET resolved = ? WHERE question = ?`),
			true, u.Question); err != nil {
			t.logger.Warn("marking resolved failed", "question", u.Question, "error", err)
			continue
		}
		resolved++
	}
	return processed, resolved, nil
}

// SuccessRate returns the rolling success rate over the whole event log
// and the number of events behind it.
func (t *Tracker) SuccessRate(ctx context.Context) (float64, int, error) {
	var successes, total int
	err := t.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(CASE WHEN outcome = 'success' THEN 1 END), COUNT(*)
		 FROM reinforcement_events`).Scan(&successes, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("computing success rate: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(successes) / float64(total), total, nil
}

// Threshold returns the confidence threshold for a category, falling back
// to the default row, then to the built-in default.
func (t *Tracker) Threshold(ctx context.Context, category string) (float64, error) {
	if category == "" {
		category = defaultCategory
	}

	var threshold float64
	err := t.db.SQL.QueryRowContext(ctx, t.db.Rebind(
		`SELECT threshold FROM confidence_thresholds WHERE category = ?`), category).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) && category != defaultCategory {
		return t.Threshold(ctx, defaultCategory)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return defaultThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading threshold %q: %w", category, err)
	}
	return threshold, nil
}

// AdjustConfidenceThreshold nudges the default threshold against the
// rolling success rate: a struggling system demands more confidence before
// trusting stored answers, a thriving one relaxes. No-op until the event
// log holds at least ten entries. Each change is recorded in the activity
// log with old and new values.
func (t *Tracker) AdjustConfidenceThreshold(ctx context.Context) error {
	rate, total, err := t.SuccessRate(ctx)
	if err != nil {
		return err
	}
	if total < minEvents {
		return nil
	}

	current, err := t.Threshold(ctx, defaultCategory)
	if err != nil {
		return err
	}

	next := current
	switch {
	case rate < lowSuccessRate:
		next = current + thresholdStep
		if next > thresholdCap {
			next = thresholdCap
		}
	case rate > highSuccessRate:
		next = current - thresholdStep
		if next < thresholdFloor {
			next = thresholdFloor
		}
	}
	if next == current {
		return nil
	}

	_, err = t.db.SQL.ExecContext(ctx, t.db.Rebind(
		`UPDATE confidence_thresholds SET threshold = ?, updated_at = ? WHERE category = ?`),
		next, time.Now().UTC(), defaultCategory)
	if err != nil {
		return fmt.Errorf("updating threshold: %w", err)
	}

	t.logger.Info("confidence threshold adjusted",
		"old", current, "new", next, "rate", rate, "events", total)
	if t.activity != nil {
		desc := fmt.Sprintf("threshold %.2f -> %.2f at success rate %.2f over %d events",
			current, next, rate, total)
		if err := t.activity.Record(ctx, "reinforce", "threshold_adjusted", desc); err != nil {
			t.logger.Warn("recording threshold change failed", "error", err)
		}
	}
	return nil
}

// sensitiveMarkers flags question text that warrants the stricter
// sensitive_topics threshold.
var sensitiveMarkers = []string{
	"politic", "religio", "medical", "diagnos", "weapon", "violen", "suicid",
}

// Categorize maps a question to a threshold category.
func Categorize(question string) string {
	q := store.Normalize(question)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(q, marker) {
			return "sensitive_topics"
		}
	}
	for _, prefix := range []string{"what ", "when ", "who ", "where ", "which "} {
		if strings.HasPrefix(q, prefix) {
			return "factual_questions"
		}
	}
	return defaultCategory
}
