// Package api exposes the engine over HTTP JSON: teaching, asking,
// searching, learning control, the activity feed, and graph export. It is
// a thin boundary; all semantics live in the packages it fronts.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/graph"
	"github.com/protype-ai/protype/internal/learn"
	"github.com/protype-ai/protype/internal/retrieval"
	"github.com/protype-ai/protype/internal/search"
	"github.com/protype-ai/protype/internal/store"
)

// taughtWeight is the trust assigned to answers taught over the API.
const taughtWeight = 0.5

// Config wires a Server.
type Config struct {
	Store     *store.Store
	DB        *store.DB
	Chain     *retrieval.Chain
	Index     search.Index
	Scheduler *learn.Scheduler
	Graph     *graph.KnowledgeGraph
	Activity  *activity.Log
	Logger    *slog.Logger

	// RatePerSecond tokens refill per client IP; RateBurst is the bucket
	// size. Zero values default to 10/s with a burst of 60.
	RatePerSecond float64
	RateBurst     int
}

// Server handles the HTTP surface.
type Server struct {
	cfg     Config
	limiter *ipLimiter
	logger  *slog.Logger
}

// NewServer validates dependencies and creates a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.DB == nil || cfg.Chain == nil {
		return nil, fmt.Errorf("store, db and chain are required")
	}
	if cfg.Scheduler == nil || cfg.Graph == nil || cfg.Activity == nil {
		return nil, fmt.Errorf("scheduler, graph and activity log are required")
	}
	if cfg.Index == nil {
		cfg.Index = search.Disabled{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 60
	}
	return &Server{
		cfg:     cfg,
		limiter: newIPLimiter(cfg.RatePerSecond, cfg.RateBurst),
		logger:  cfg.Logger,
	}, nil
}

// Handler builds the routed handler with the middleware stack:
// recovery, request ID, logging, then per-IP rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/teach", s.handleTeach)
	mux.HandleFunc("POST /api/v1/ask", s.handleAsk)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/learning/start", s.handleLearningStart)
	mux.HandleFunc("POST /api/v1/learning/stop", s.handleLearningStop)
	mux.HandleFunc("GET /api/v1/learning/status", s.handleLearningStatus)
	mux.HandleFunc("GET /api/v1/activity", s.handleActivity)
	mux.HandleFunc("GET /api/v1/graph", s.handleGraphExport)
	mux.HandleFunc("GET /api/v1/graph/stats", s.handleGraphStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(s.limiter, s.logger)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}
