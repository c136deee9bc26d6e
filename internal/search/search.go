// Package search provides the full-text retrieval tier over the knowledge
// store. The index is a best-effort accelerator: when it is unavailable or
// errors, callers fall through to cheaper store scans.
package search

import (
	"context"
	"errors"

	"github.com/protype-ai/protype/internal/store"
)

// ErrUnavailable indicates the index cannot serve queries on this backend.
var ErrUnavailable = errors.New("search index unavailable")

// Result is one ranked hit. Rank is a relevance ordering value where higher
// is better; it is not a confidence and is never compared against entry
// weights.
type Result struct {
	Entry store.Entry `json:"entry"`
	Rank  float64     `json:"rank"`
}

// Index ranks stored knowledge against free-text queries.
type Index interface {
	// Query returns up to limit hits ordered best first. Returns
	// ErrUnavailable when the index cannot serve on this backend.
	Query(ctx context.Context, text string, limit int) ([]Result, error)

	// Available reports whether Query can be expected to work.
	Available() bool
}

// Disabled is an Index that always reports unavailable. Used when search is
// switched off in config or the storage backend has no full-text support.
type Disabled struct{}

func (Disabled) Query(context.Context, string, int) ([]Result, error) {
	return nil, ErrUnavailable
}

func (Disabled) Available() bool { return false }
