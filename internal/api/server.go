// Package api serves stored runs over a read-only JSON API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rnadiff/domain/core"
	"rnadiff/domain/expression"
	"rnadiff/internal"
	"rnadiff/internal/errors"
	"rnadiff/internal/ranking"
	"rnadiff/ports"
)

// maxLimit caps list sizes requested through query parameters
const maxLimit = 10000

// Server exposes runs, result tables and hits
type Server struct {
	router *chi.Mux
	reader ports.ReaderPort
	logger *internal.Logger
}

// NewServer creates the router over reader; a nil logger discards output
func NewServer(reader ports.ReaderPort, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.NopLogger()
	}
	s := &Server{
		router: chi.NewRouter(),
		reader: reader,
		logger: logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/results", s.handleResults)
		r.Get("/{id}/hits", s.handleHits)
	})
}

// ServeHTTP makes Server an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr until the server fails
func (s *Server) Start(addr string) error {
	s.logger.Info("[API] listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := s.reader.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rn, err := s.reader.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.reader.GetRun(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.reader.Results(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dir := ranking.ParseDirection(r.URL.Query().Get("direction"))
	if dir != ranking.DirectionAny || r.URL.Query().Get("sort") == "padj" {
		rows = ranking.Filter(rows, dir)
	}
	if alpha := r.URL.Query().Get("alpha"); alpha != "" {
		a, err := strconv.ParseFloat(alpha, 64)
		if err != nil || !(a > 0 && a <= 1) {
			s.writeError(w, core.NewValidationError("alpha", "must be in (0, 1]"))
			return
		}
		rows = ranking.Significant(rows, a)
	}
	total := len(rows)
	rows = ranking.Limit(rows, limit)
	if rows == nil {
		rows = []expression.DifferentialResult{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    id,
		"direction": dir,
		"total":     total,
		"results":   rows,
	})
}

func (s *Server) handleHits(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	rn, err := s.reader.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hits, err := s.reader.Hits(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":       id,
		"status":       rn.Status,
		"query_gene":   rn.QueryGene,
		"search_error": rn.SearchError,
		"hits":         hits,
	})
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxLimit {
		return 0, core.NewValidationError("limit", "must be an integer between 0 and 10000")
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInputValidation:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("[API] %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
