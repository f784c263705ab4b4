package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/pkg/session"
	"github.com/mahir/coursebot/pkg/workflow"
	"github.com/rs/zerolog"
)

// Options configures the HTTP server.
type Options struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// Server is the coursebot HTTP server. It owns the boundary between the
// network layer and the classify/route/tutor core.
type Server struct {
	options        Options
	server         *http.Server
	store          *session.Store
	flow           *workflow.Workflow
	hub            *EventHub
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// New creates a new HTTP server.
func New(options Options, store *session.Store, flow *workflow.Workflow, hub *EventHub, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 60 * time.Second
	}

	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if flow == nil {
		return nil, fmt.Errorf("workflow is required")
	}

	return &Server{
		options:   options,
		store:     store,
		flow:      flow,
		hub:       hub,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /courses", s.handleCourses)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}/stats", s.handleSessionStats)
	mux.HandleFunc("GET /sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("POST /sessions/{id}/clear", s.handleClearSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWS)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server, draining in-flight requests first.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.hub != nil {
		s.hub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// beginRequest rejects requests during shutdown and tracks in-flight work.
// The returned func must be deferred when ok.
func (s *Server) beginRequest(w http.ResponseWriter) (func(), bool) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()

	if shuttingDown {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return nil, false
	}

	s.inFlightReqs.Add(1)
	return s.inFlightReqs.Done, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, errMsg, detail string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     errMsg,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}
