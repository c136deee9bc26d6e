// Package cache keeps recently served answers close to the API so repeat
// questions skip the retrieval chain. Two backends: an in-process LRU with
// TTL, and Redis for deployments that share a cache across processes.
package cache

import (
	"context"

	"github.com/protype-ai/protype/internal/store"
)

// Cache stores answers keyed by normalized question text. Implementations
// are safe for concurrent use. A cache is advisory: misses and backend
// errors both read as "not cached".
type Cache interface {
	Get(ctx context.Context, question string) (store.Entry, bool)
	Set(ctx context.Context, entry store.Entry)
	Invalidate(ctx context.Context, question string)
}

// None is the no-op cache used when caching is disabled.
type None struct{}

func (None) Get(context.Context, string) (store.Entry, bool) { return store.Entry{}, false }
func (None) Set(context.Context, store.Entry)                {}
func (None) Invalidate(context.Context, string)              {}
