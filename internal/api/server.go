// Package api serves bake status over HTTP: health, bake history and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/bakery/internal/history"
)

// BakeStore is the read side of the bake history.
type BakeStore interface {
	Recent(ctx context.Context, limit int) ([]history.Summary, error)
	Get(ctx context.Context, bakeID string) (history.Summary, error)
}

// Server represents the status server.
type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	bakes   BakeStore
	metrics http.Handler
	logger  *slog.Logger
}

// Options configures a Server. Nil Bakes disables the history routes; nil
// Metrics disables /metrics.
type Options struct {
	Bakes   BakeStore
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewServer creates a new status server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:    addr,
		router:  chi.NewRouter(),
		bakes:   opts.Bakes,
		metrics: opts.Metrics,
		logger:  logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/bakes", s.handleListBakes)
	s.router.Get("/bakes/{id}", s.handleGetBake)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("Status server listening", slog.String("addr", s.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Error writes an error response.
func (s *Server) Error(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Response{Success: false, Error: message})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleListBakes(w http.ResponseWriter, r *http.Request) {
	if s.bakes == nil {
		s.Error(w, http.StatusNotFound, "bake history is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	bakes, err := s.bakes.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list bakes", "error", err)
		s.Error(w, http.StatusInternalServerError, "failed to list bakes")
		return
	}
	if bakes == nil {
		bakes = []history.Summary{}
	}
	s.Success(w, http.StatusOK, bakes)
}

func (s *Server) handleGetBake(w http.ResponseWriter, r *http.Request) {
	if s.bakes == nil {
		s.Error(w, http.StatusNotFound, "bake history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	sum, err := s.bakes.Get(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		s.Error(w, http.StatusNotFound, "bake not found")
	case err != nil:
		s.logger.Error("Failed to get bake", "bake_id", id, "error", err)
		s.Error(w, http.StatusInternalServerError, "failed to get bake")
	default:
		s.Success(w, http.StatusOK, sum)
	}
}
