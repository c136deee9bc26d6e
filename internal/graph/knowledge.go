package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/protype-ai/protype/internal/extract"
	"github.com/protype-ai/protype/internal/store"
)

// KnowledgeGraph maintains the current graph view over a knowledge store.
// Rebuild replaces the whole view in one pointer swap; readers keep
// whatever view they picked up and are never blocked by a rebuild.
type KnowledgeGraph struct {
	store       *store.Store
	extractor   extract.Func
	logger      *slog.Logger
	inferredCap int

	view    atomic.Pointer[View]
	builtAt atomic.Pointer[time.Time]
}

// New creates a KnowledgeGraph with an empty initial view. extractor may
// be nil, in which case the heuristic extractor is used.
func New(s *store.Store, extractor extract.Func, inferredCap int, logger *slog.Logger) (*KnowledgeGraph, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if extractor == nil {
		extractor = extract.Heuristic(entitiesPerAnswer)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &KnowledgeGraph{store: s, extractor: extractor, logger: logger, inferredCap: inferredCap}
	g.view.Store(NewView(inferredCap))
	return g, nil
}

// Rebuild reads a full store snapshot, constructs a fresh view off to the
// side, and swaps it in. On error the previous view stays current.
func (g *KnowledgeGraph) Rebuild(ctx context.Context) error {
	start := time.Now()
	entries, err := g.store.AllEntries(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding graph: %w", err)
	}

	v := Build(entries, g.extractor, g.inferredCap)
	g.view.Store(v)
	now := time.Now().UTC()
	g.builtAt.Store(&now)

	st := v.Stats()
	if st.Skipped > 0 {
		g.logger.Warn("graph rebuild skipped records", "skipped", st.Skipped)
	}
	g.logger.Debug("graph rebuilt",
		"questions", st.Questions,
		"entities", st.Entities,
		"edges", st.Edges,
		"inferred", st.Inferred,
		"took", time.Since(start))
	return nil
}

// View returns the current immutable view.
func (g *KnowledgeGraph) View() *View { return g.view.Load() }

// BuiltAt returns when the current view was built, zero if never rebuilt.
func (g *KnowledgeGraph) BuiltAt() time.Time {
	if t := g.builtAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}
