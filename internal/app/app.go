// Package app assembles the engine: storage, search, cache, the retrieval
// chain, the knowledge graph, the background scheduler, and the HTTP
// surface. Commands build an App (or just a Core) and drive it; no other
// package constructs cross-component wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/cache"
	"github.com/protype-ai/protype/internal/config"
	"github.com/protype-ai/protype/internal/crawl"
	"github.com/protype-ai/protype/internal/generative"
	"github.com/protype-ai/protype/internal/graph"
	"github.com/protype-ai/protype/internal/learn"
	"github.com/protype-ai/protype/internal/observability"
	"github.com/protype-ai/protype/internal/reinforce"
	"github.com/protype-ai/protype/internal/retrieval"
	"github.com/protype-ai/protype/internal/search"
	"github.com/protype-ai/protype/internal/store"
)

const (
	lockFile     = "protype.lock"
	crawlTimeout = 10 * time.Second
)

// Core is the storage-level assembly every command needs: the migrated
// database, the store, the search index, the activity feed, and the
// reinforcement tracker. It holds an exclusive lock on the data directory
// so two processes never share one sqlite file.
type Core struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *store.DB
	Store    *store.Store
	Index    search.Index
	Activity *activity.Log
	Tracker  *reinforce.Tracker

	lock *flock.Flock
}

// OpenCore locks the data directory, opens the configured database, runs
// migrations, and builds the storage-level components.
func OpenCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.DataDir, lockFile))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data directory: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("data directory %s is in use by another process", cfg.DataDir)
	}

	c := &Core{Config: cfg, Logger: logger, lock: lock}
	if err := c.openStorage(ctx); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return c, nil
}

func (c *Core) openStorage(ctx context.Context) error {
	var (
		db  *store.DB
		err error
	)
	switch c.Config.Storage.Driver {
	case config.DriverPostgres:
		db, err = store.OpenPostgres(c.Config.Storage.URL)
	default:
		db, err = store.OpenSQLite(filepath.Join(c.Config.DataDir, "knowledge.db"))
	}
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrating database: %w", err)
	}
	c.DB = db

	if c.Store, err = store.New(db, c.Logger); err != nil {
		_ = db.Close()
		return err
	}
	if c.Activity, err = activity.NewLog(db, c.Logger); err != nil {
		_ = db.Close()
		return err
	}
	if c.Tracker, err = reinforce.New(db, c.Activity, c.Logger); err != nil {
		_ = db.Close()
		return err
	}

	c.Index = search.Disabled{}
	if c.Config.SearchEnabled {
		if fts, ferr := search.NewFTS(db, c.Logger); ferr == nil {
			c.Index = fts
		} else {
			c.Logger.Debug("full-text search disabled", "reason", ferr)
		}
	}
	return nil
}

// Close releases the database and the data directory lock.
func (c *Core) Close() error {
	var firstErr error
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			firstErr = err
		}
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// App is the full engine on top of a Core: generative tier, answer cache,
// retrieval chain, knowledge graph, crawler, scheduler, and tracing.
type App struct {
	*Core

	Cache      cache.Cache
	Generative *generative.Client
	Chain      *retrieval.Chain
	Graph      *graph.KnowledgeGraph
	Crawler    *crawl.Crawler
	Scheduler  *learn.Scheduler

	shutdownTracing func(context.Context) error
}

// New assembles the full engine. The configuration must pass ValidateServe.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	core, err := OpenCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Core: core}
	if err := a.assemble(ctx); err != nil {
		_ = core.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) assemble(ctx context.Context) error {
	shutdown, err := observability.Setup(ctx, a.Config.Observability, a.Logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	gen, err := generative.New(ctx, a.Config.Generative, a.Config.GeminiAPIKey, a.Logger)
	if err != nil {
		return fmt.Errorf("initializing generative client: %w", err)
	}
	a.Generative = gen

	a.Cache = cache.NewLRU(a.Config.Cache.Size, a.Config.Cache.TTL)
	if addr := a.Config.Cache.RedisAddr; addr != "" {
		rc, rerr := cache.NewRedis(ctx, addr, a.Config.Cache.TTL, a.Logger)
		if rerr != nil {
			return fmt.Errorf("connecting to redis: %w", rerr)
		}
		a.Cache = rc
	}

	a.Chain, err = retrieval.New(retrieval.Config{
		Store:      a.Store,
		Index:      a.Index,
		Cache:      a.Cache,
		Generative: gen,
		Tracker:    a.Tracker,
		Activity:   a.Activity,
		SourceTag:  gen.SourceTag(),
		Logger:     a.Logger,
	})
	if err != nil {
		return err
	}

	a.Graph, err = graph.New(a.Store, nil, a.Config.InferredEdgeCap, a.Logger)
	if err != nil {
		return err
	}
	if err := a.Graph.Rebuild(ctx); err != nil {
		a.Logger.Warn("initial graph build failed", "error", err)
	}

	a.Crawler = crawl.New(crawlTimeout, a.Logger)

	a.Scheduler, err = learn.New(learn.Config{
		Store:           a.Store,
		Chain:           a.Chain,
		Tracker:         a.Tracker,
		Graph:           a.Graph,
		Crawler:         a.Crawler,
		Summarizer:      gen,
		Activity:        a.Activity,
		Logger:          a.Logger,
		Interval:        a.Config.Learning.Interval,
		ReinforceFactor: a.Config.Learning.ReinforceFactor,
		MaxBatch:        a.Config.Learning.MaxBatch,
		RebuildEvery:    a.Config.Learning.RebuildEvery,
		Topics:          a.Config.Learning.Topics,
		Questions:       a.Config.Learning.Questions,
	})
	return err
}

// Close stops the scheduler, flushes traces, and releases the Core.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(10 * time.Second); err != nil {
			firstErr = err
		}
	}
	if rc, ok := a.Cache.(*cache.Redis); ok {
		if err := rc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Core.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
