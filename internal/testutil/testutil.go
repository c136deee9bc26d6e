// Package testutil holds test fakes and fixtures shared across package
// tests. Production code must not import it.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/protype-ai/protype/internal/generative"
	"github.com/protype-ai/protype/internal/log"
	"github.com/protype-ai/protype/internal/store"
)

// OpenStore opens a migrated sqlite store in a per-test temp dir.
func OpenStore(t *testing.T) (*store.DB, *store.Store) {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	s, err := store.New(db, log.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return db, s
}

// FakeGenerative is a scripted generative.Answerer. Questions found in
// Replies answer with the scripted response; everything else fails with
// Err (generative.ErrNoAnswer when Err is nil). Calls records every
// question asked, in order.
type FakeGenerative struct {
	mu      sync.Mutex
	Replies map[string]generative.Response
	Err     error
	Calls   []string
}

func (f *FakeGenerative) Answer(_ context.Context, question string) (generative.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := store.Normalize(question)
	f.Calls = append(f.Calls, key)
	if r, ok := f.Replies[key]; ok {
		return r, nil
	}
	if f.Err != nil {
		return generative.Response{}, f.Err
	}
	return generative.Response{}, generative.ErrNoAnswer
}

// CallCount returns how many questions were asked so far.
func (f *FakeGenerative) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
