// Package retrieval walks the tiered answer chain: cache, exact store
// lookup, full-text index, substring scan, then the generative service.
// Cheaper and more trusted tiers always win; the generative tier is the
// only one that can create new knowledge, and its failures surface as a
// neutral placeholder, never as an error to the asker.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/cache"
	"github.com/protype-ai/protype/internal/generative"
	"github.com/protype-ai/protype/internal/reinforce"
	"github.com/protype-ai/protype/internal/search"
	"github.com/protype-ai/protype/internal/store"
)

// ErrEmptyQuery is the only error Answer surfaces for user input.
var ErrEmptyQuery = errors.New("query is empty")

// Placeholder is returned when every tier comes up empty. The question is
// queued for background research, so the honest status is "learning".
const Placeholder = "I'm searching for information about this topic. " +
	"I don't have a complete answer yet, but I'm learning about it. " +
	"Feel free to check back soon or rephrase your question!"

// PlaceholderSource tags placeholder responses.
const PlaceholderSource = "system"

// directWeight is the trust assigned to freshly generated answers.
const directWeight = 0.7

// Result is one answered query. WasFallback is false only for cache hits
// and exact store matches.
type Result struct {
	Answer      string `json:"answer"`
	Source      string `json:"source"`
	WasFallback bool   `json:"was_fallback"`
}

// Chain owns the tier walk and the bounded answer cache.
type Chain struct {
	store     *store.Store
	index     search.Index
	cache     cache.Cache
	gen       generative.Answerer
	tracker   *reinforce.Tracker
	activity  *activity.Log
	sourceTag string
	logger    *slog.Logger
}

// Config wires a Chain. Index, Cache, Activity and Logger are optional;
// Store, Generative and Tracker are not.
type Config struct {
	Store      *store.Store
	Index      search.Index
	Cache      cache.Cache
	Generative generative.Answerer
	Tracker    *reinforce.Tracker
	Activity   *activity.Log
	SourceTag  string
	Logger     *slog.Logger
}

// New creates a Chain.
func New(cfg Config) (*Chain, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Generative == nil {
		return nil, fmt.Errorf("generative client is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if cfg.Index == nil {
		cfg.Index = search.Disabled{}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.None{}
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = "gemini_flash_direct"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chain{
		store:     cfg.Store,
		index:     cfg.Index,
		cache:     cfg.Cache,
		gen:       cfg.Generative,
		tracker:   cfg.Tracker,
		activity:  cfg.Activity,
		sourceTag: cfg.SourceTag,
		logger:    cfg.Logger,
	}, nil
}

// Answer resolves one query through the tier order. Tier order is a strict
// contract: an exact store hit must never reach the generative service.
func (c *Chain) Answer(ctx context.Context, query, actor string) (Result, error) {
	key := store.Normalize(query)
	if key == "" {
		return Result{}, ErrEmptyQuery
	}

	// Tier 0: bounded cache. Hits were recorded when first answered.
	if e, ok := c.cache.Get(ctx, key); ok {
		c.logger.Debug("answered from cache", "question", key)
		return Result{Answer: e.Answer, Source: e.Source}, nil
	}

	// Tier 1: exact store lookup.
	e, err := c.store.Get(ctx, key)
	if err == nil {
		c.cache.Set(ctx, *e)
		c.tracker.RecordSuccess(ctx, key, e.Answer, e.Weight)
		return Result{Answer: e.Answer, Source: e.Source}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		// Read failures mean "absent", next tier.
		c.logger.Warn("store lookup failed", "question", key, "error", err)
	}

	threshold := c.threshold(ctx, key)

	// Tier 2: full-text index, skipped silently when unavailable.
	if hit, ok := c.searchTier(ctx, key, threshold); ok {
		c.cache.Set(ctx, hit)
		c.tracker.RecordSuccess(ctx, key, hit.Answer, hit.Weight)
		return Result{Answer: hit.Answer, Source: hit.Source, WasFallback: true}, nil
	}

	// Tier 3: substring scan.
	if hit, ok := c.scanTier(ctx, key, threshold); ok {
		c.cache.Set(ctx, hit)
		c.tracker.RecordSuccess(ctx, key, hit.Answer, hit.Weight)
		return Result{Answer: hit.Answer, Source: hit.Source, WasFallback: true}, nil
	}

	// Tier 4: generative service.
	resp, err := c.gen.Answer(ctx, query)
	if err != nil {
		c.logger.Info("all tiers exhausted", "question", key, "error", err)
		c.tracker.RecordFailure(ctx, key, "", err.Error())
		c.recordActivity(ctx, "retrieval", "unanswered", key)
		return Result{Answer: Placeholder, Source: PlaceholderSource, WasFallback: true}, nil
	}

	if actor == "" {
		actor = "system"
	}
	if err := c.store.Upsert(ctx, key, resp.Answer, directWeight, c.sourceTag, actor); err != nil {
		return Result{}, fmt.Errorf("persisting generated answer: %w", err)
	}
	entry := store.Entry{Question: key, Answer: resp.Answer, Weight: directWeight, Source: c.sourceTag}
	c.cache.Set(ctx, entry)
	c.tracker.RecordSuccess(ctx, key, resp.Answer, resp.Confidence)
	c.recordActivity(ctx, "retrieval", "learned", key)
	return Result{Answer: resp.Answer, Source: c.sourceTag, WasFallback: true}, nil
}

// Research runs only the acquisition tier for a question and persists the
// result. Used by the reinforcement retry queue and the scheduler.
func (c *Chain) Research(ctx context.Context, question string) error {
	key := store.Normalize(question)
	if key == "" {
		return ErrEmptyQuery
	}

	resp, err := c.gen.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("researching %q: %w", key, err)
	}
	if err := c.store.Upsert(ctx, key, resp.Answer, directWeight, c.sourceTag, "scheduler"); err != nil {
		return fmt.Errorf("persisting research for %q: %w", key, err)
	}
	c.cache.Invalidate(ctx, key)
	c.tracker.RecordSuccess(ctx, key, resp.Answer, resp.Confidence)
	c.recordActivity(ctx, "scheduler", "learned", key)
	return nil
}

// Invalidate drops any cached answer for question. Callers that write to
// the store past the chain (teaching) must call it afterwards so a cached
// earlier answer cannot shadow the corrected one; the store stays
// authoritative.
func (c *Chain) Invalidate(ctx context.Context, question string) {
	c.cache.Invalidate(ctx, store.Normalize(question))
}

func (c *Chain) threshold(ctx context.Context, question string) float64 {
	t, err := c.tracker.Threshold(ctx, reinforce.Categorize(question))
	if err != nil {
		c.logger.Warn("threshold read failed, using default", "error", err)
		return 0.7
	}
	return t
}

func (c *Chain) searchTier(ctx context.Context, key string, threshold float64) (store.Entry, bool) {
	if !c.index.Available() {
		return store.Entry{}, false
	}
	hits, err := c.index.Query(ctx, key, 5)
	if err != nil {
		if !errors.Is(err, search.ErrUnavailable) {
			c.logger.Debug("index tier skipped", "error", err)
		}
		return store.Entry{}, false
	}
	for _, h := range hits {
		if h.Entry.Weight >= threshold {
			return h.Entry, true
		}
	}
	return store.Entry{}, false
}

func (c *Chain) scanTier(ctx context.Context, key string, threshold float64) (store.Entry, bool) {
	entries, err := c.store.Scan(ctx, key, 5)
	if err != nil {
		c.logger.Debug("scan tier skipped", "error", err)
		return store.Entry{}, false
	}
	for _, e := range entries {
		if e.Weight >= threshold {
			return e, true
		}
	}
	return store.Entry{}, false
}

func (c *Chain) recordActivity(ctx context.Context, source, action, description string) {
	if c.activity == nil {
		return
	}
	if err := c.activity.Record(ctx, source, action, description); err != nil {
		c.logger.Debug("activity record failed", "action", action, "error", err)
	}
}
