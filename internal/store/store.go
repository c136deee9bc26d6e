// Package store implements the durable knowledge store: a map from
// normalized question text to an answer record with provenance and audit
// fields.
//
// Writes to the same key serialize on a single upsert statement inside the
// engine's native transaction, so the final state is always exactly one
// caller's full record. Reads are snapshot-consistent and never hold a lock
// across consumer processing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store manages knowledge entries on top of a DB handle.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// New creates a Store. logger may be nil.
func New(db *DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// upsertSQL replaces the full record on key conflict. created-* columns are
// only written on first insert; modified-* on every write. Single statement,
// so concurrent upserts to one key cannot interleave fields.
const upsertSQL = `INSERT INTO knowledge
	(question, answer, weight, source, created_at, created_by, modified_at, modified_by)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (question) DO UPDATE SET
		answer = excluded.answer,
		weight = excluded.weight,
		source = excluded.source,
		modified_at = excluded.modified_at,
		modified_by = excluded.modified_by`

const entryCols = `question, answer, weight, source, created_at, created_by, modified_at, modified_by`

// Upsert writes an entry under the normalized question key, replacing any
// existing record (last-committed-wins). A persistence error is returned to
// the caller and leaves no partial state.
func (s *Store) Upsert(ctx context.Context, question, answer string, weight float64, source, actor string) error {
	key := Normalize(question)
	if key == "" {
		return fmt.Errorf("question is required")
	}
	if answer == "" {
		return fmt.Errorf("answer is required")
	}
	if weight < 0 || weight > 1 {
		return fmt.Errorf("weight %v out of range [0,1]", weight)
	}
	if actor == "" {
		actor = "system"
	}

	now := time.Now().UTC()
	_, err := s.db.SQL.ExecContext(ctx, s.db.Rebind(upsertSQL),
		key, answer, weight, source, now, actor, now, actor)
	if err != nil {
		return fmt.Errorf("upserting %q: %w", key, err)
	}

	s.logger.Debug("knowledge upserted", "question", key, "source", source, "weight", weight)
	return nil
}

// Get returns the entry for the exact normalized question key, or
// ErrNotFound.
func (s *Store) Get(ctx context.Context, question string) (*Entry, error) {
	key := Normalize(question)

	row := s.db.SQL.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+entryCols+` FROM knowledge WHERE question = ?`), key)

	var e Entry
	err := row.Scan(&e.Question, &e.Answer, &e.Weight, &e.Source,
		&e.CreatedAt, &e.CreatedBy, &e.ModifiedAt, &e.ModifiedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}
	return &e, nil
}

// Scan returns up to limit entries whose question or answer contains the
// query, case-insensitively, ordered by weight descending. This is the
// lowest-cost fallback tier.
func (s *Store) Scan(ctx context.Context, substring string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(substring) + "%"

	rows, err := s.db.SQL.QueryContext(ctx, s.db.Rebind(
		`SELECT `+entryCols+` FROM knowledge
		 WHERE lower(question) LIKE ? OR lower(answer) LIKE ?
		 ORDER BY weight DESC, question ASC
		 LIMIT ?`), pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning for %q: %w", substring, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// AllEntries returns a consistent snapshot of every entry, ordered by
// question, for graph rebuilds and reporting. The read completes before the
// slice is handed to the caller; no lock is held while consumers iterate.
func (s *Store) AllEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.SQL.QueryContext(ctx,
		`SELECT `+entryCols+` FROM knowledge ORDER BY question ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of live entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.SQL.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Delete removes an entry. Explicit maintenance only; normal operation
// never hard-deletes.
func (s *Store) Delete(ctx context.Context, question string) error {
	key := Normalize(question)
	res, err := s.db.SQL.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM knowledge WHERE question = ?`), key)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.logger.Info("knowledge deleted", "question", key)
	return nil
}

// History returns the change history for a question. The schema keeps a
// single live row per key (modified-* records only the latest write), so
// the result has at most one element. The audit columns leave room for a
// true append-only history table later.
func (s *Store) History(ctx context.Context, question string) ([]Entry, error) {
	e, err := s.Get(ctx, question)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Entry{*e}, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Question, &e.Answer, &e.Weight, &e.Source,
			&e.CreatedAt, &e.CreatedBy, &e.ModifiedAt, &e.ModifiedBy); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}
