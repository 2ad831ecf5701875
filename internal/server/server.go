// Package server exposes the status API consumed by the dashboard.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"etlwatch/internal/status"
)

// Evaluator runs a fresh evaluation pass. Probes are cheap and infrequent,
// so every /api/status request re-evaluates rather than serving a cache.
type Evaluator interface {
	EvaluateAll(ctx context.Context) []status.Record
}

// HistoryStore serves stored record history.
type HistoryStore interface {
	History(ctx context.Context, pipeline string, limit, offset int) ([]status.Record, int, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	eval   Evaluator
	store  HistoryStore
	router chi.Router
	logger *slog.Logger
}

// New creates a Server and registers all routes. Pass nil logger to use the
// default logger.
func New(eval Evaluator, store HistoryStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		eval:   eval,
		store:  store,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/history", s.handleHistory)
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns a fresh evaluation of every pipeline as a JSON array
// of {pipeline, status, detail, evaluated_at}. Probe failures surface as
// CRITICAL rows rather than omissions.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	records := s.eval.EvaluateAll(r.Context())
	writeJSON(w, http.StatusOK, records)
}

type historyResponse struct {
	Records []status.Record `json:"records"`
	Total   int             `json:"total"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	pipeline := r.URL.Query().Get("pipeline")
	if pipeline == "" {
		writeError(w, http.StatusBadRequest, "pipeline parameter is required")
		return
	}

	const maxLimit = 1000
	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	records, total, err := s.store.History(r.Context(), pipeline, limit, offset)
	if err != nil {
		s.logger.Error("History", "pipeline", pipeline, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []status.Record{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Records: records, Total: total})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
