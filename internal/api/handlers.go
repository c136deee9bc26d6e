package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/protype-ai/protype/internal/store"
)

type teachRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleTeach(w http.ResponseWriter, r *http.Request) {
	var req teachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", s.logger)
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question and answer are required", s.logger)
		return
	}

	if err := s.cfg.Store.Upsert(r.Context(), req.Question, req.Answer, taughtWeight, "user", "api"); err != nil {
		s.logger.Error("teach failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not store the answer", s.logger)
		return
	}
	s.cfg.Chain.Invalidate(r.Context(), req.Question)
	if err := s.cfg.Activity.Record(r.Context(), "api", "taught", store.Normalize(req.Question)); err != nil {
		s.logger.Debug("activity record failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, s.logger)
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer      string `json:"answer"`
	Source      string `json:"source"`
	WasFallback bool   `json:"was_fallback"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", s.logger)
		return
	}

	result, err := s.cfg.Chain.Answer(r.Context(), req.Question, "api")
	if err != nil {
		// The chain only surfaces the caller's own input errors.
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:      result.Answer,
		Source:      result.Source,
		WasFallback: result.WasFallback,
	}, s.logger)
}

type searchHit struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Source   string  `json:"source"`
	Weight   float64 `json:"weight"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required", s.logger)
		return
	}
	limit := queryInt(r, "limit", 10)

	var entries []store.Entry
	if s.cfg.Index.Available() {
		hits, err := s.cfg.Index.Query(r.Context(), query, limit)
		if err == nil {
			for _, h := range hits {
				entries = append(entries, h.Entry)
			}
		} else {
			s.logger.Debug("index search failed, scanning", "error", err)
		}
	}
	if entries == nil {
		var err error
		entries, err = s.cfg.Store.Scan(r.Context(), query, limit)
		if err != nil {
			s.logger.Error("search failed", "error", err)
			writeError(w, http.StatusInternalServerError, "store_error", "search failed", s.logger)
			return
		}
	}

	hits := make([]searchHit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, searchHit{Question: e.Question, Answer: e.Answer, Source: e.Source, Weight: e.Weight})
	}
	writeJSON(w, http.StatusOK, hits, s.logger)
}

func (s *Server) handleLearningStart(w http.ResponseWriter, r *http.Request) {
	s.cfg.Scheduler.Start()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, s.logger)
}

func (s *Server) handleLearningStop(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Scheduler.Stop(10 * time.Second); err != nil {
		s.logger.Error("learning stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scheduler_error", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, s.logger)
}

func (s *Server) handleLearningStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Scheduler.Status(), s.logger)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	events, err := s.cfg.Activity.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("activity read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not read activity", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, events, s.logger)
}

func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.cfg.Graph.View().Export()
	if err != nil {
		s.logger.Error("graph export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "graph_error", "could not export graph", s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type graphStatsResponse struct {
	Questions int       `json:"questions"`
	Entities  int       `json:"entities"`
	Sources   int       `json:"sources"`
	Edges     int       `json:"edges"`
	Inferred  int       `json:"inferred"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	st := s.cfg.Graph.View().Stats()
	writeJSON(w, http.StatusOK, graphStatsResponse{
		Questions: st.Questions,
		Entities:  st.Entities,
		Sources:   st.Sources,
		Edges:     st.Edges,
		Inferred:  st.Inferred,
		BuiltAt:   s.cfg.Graph.BuiltAt(),
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.DB.SQL.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "store unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
