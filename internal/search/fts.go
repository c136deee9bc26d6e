package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/protype-ai/protype/internal/store"
)

// FTS queries the sqlite full-text table kept in sync with the knowledge
// table by triggers. Question text is weighted above answer text so exact
// phrasings of a known question rank first.
type FTS struct {
	db     *store.DB
	logger *slog.Logger
}

// NewFTS creates the sqlite-backed index. On any other backend it returns
// ErrUnavailable; callers substitute Disabled.
func NewFTS(db *store.DB, logger *slog.Logger) (*FTS, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if db.Dialect() != store.DialectSQLite {
		return nil, ErrUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FTS{db: db, logger: logger}, nil
}

func (f *FTS) Available() bool { return true }

// ftsQuerySQL ranks with bm25 weighting question 2x over answer. bm25
// returns lower-is-better, so rank is negated before leaving this package.
const ftsQuerySQL = `SELECT k.question, k.answer, k.weight, k.source,
		k.created_at, k.created_by, k.modified_at, k.modified_by,
		bm25(knowledge_fts, 2.0, 1.0, 0.0) AS rank
	FROM knowledge_fts
	JOIN knowledge k ON k.id = knowledge_fts.rowid
	WHERE knowledge_fts MATCH ?
	ORDER BY rank
	LIMIT ?`

func (f *FTS) Query(ctx context.Context, text string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	match := matchExpr(text)
	if match == "" {
		return nil, nil
	}

	rows, err := f.db.SQL.QueryContext(ctx, ftsQuerySQL, match, limit)
	if err != nil {
		return nil, fmt.Errorf("querying index for %q: %w", text, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Entry.Question, &r.Entry.Answer, &r.Entry.Weight,
			&r.Entry.Source, &r.Entry.CreatedAt, &r.Entry.CreatedBy,
			&r.Entry.ModifiedAt, &r.Entry.ModifiedBy, &r.Rank); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		r.Rank = -r.Rank
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}

	f.logger.Debug("index query", "text", text, "hits", len(results))
	return results, nil
}

// matchExpr turns free text into a safe FTS5 match expression: each token
// quoted as a string literal, joined with OR so partial phrasings still hit.
func matchExpr(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, tok := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
