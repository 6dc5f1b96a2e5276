// Package api provides the HTTP REST API for the reconwave scan engine.
// It exposes scan submission, status, cancellation, and a WebSocket stream
// of per-scan progress events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kvist/reconwave/internal/config"
	"github.com/kvist/reconwave/internal/errors"
	"github.com/kvist/reconwave/internal/logging"
	"github.com/kvist/reconwave/internal/metrics"
	"github.com/kvist/reconwave/internal/scanning"
)

const (
	serverShutdownTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Server is the API server. All scan operations delegate to the
// orchestrator; the server holds no scan state of its own.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	config       *config.Config
	orchestrator *scanning.Orchestrator
	logger       *logging.Logger
	startTime    time.Time
}

// New creates an API server wired to the given orchestrator.
func New(cfg *config.Config, orchestrator *scanning.Orchestrator) *Server {
	server := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		orchestrator: orchestrator,
		logger:       logging.Default().WithComponent("api"),
		startTime:    time.Now(),
	}

	server.setupRoutes()
	server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:      server.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: cfg.API.RequestTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return server
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// GetRouter returns the configured router, used by tests.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server listen address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/liveness", s.livenessHandler).Methods("GET")
	api.HandleFunc("/health", s.healthHandler).Methods("GET")

	api.HandleFunc("/scans", s.createScanHandler).Methods("POST")
	api.HandleFunc("/scans", s.listScansHandler).Methods("GET")
	api.HandleFunc("/scans/finished", s.clearFinishedHandler).Methods("DELETE")
	api.HandleFunc("/scans/{id}", s.getScanHandler).Methods("GET")
	api.HandleFunc("/scans/{id}", s.cancelScanHandler).Methods("DELETE")
	api.HandleFunc("/scans/{id}/events", s.scanEventsHandler).Methods("GET")

	s.router.Handle("/metrics", metrics.GetGlobalMetrics().Handler()).Methods("GET")
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	if s.config.API.CORS.Enabled {
		cors := s.config.API.CORS
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(cors.AllowedOrigins),
			handlers.AllowedMethods(cors.AllowedMethods),
			handlers.AllowedHeaders(cors.AllowedHeaders),
		))
	}
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC(),
		"active_scans": len(s.orchestrator.ActiveScans()),
	})
}

// ErrorResponse is the standard API error shape.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusForError(err)

	s.logger.Error("API error",
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"error", err)

	s.writeJSON(w, statusCode, ErrorResponse{
		Error:     err.Error(),
		Code:      string(errors.GetCode(err)),
		Timestamp: time.Now().UTC(),
	})
}

// statusForError maps engine error codes onto HTTP status codes.
func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConscienceRejected:
		return http.StatusForbidden
	case errors.CodeConcurrencyLimit:
		return http.StatusTooManyRequests
	case errors.CodeGateUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeTargetInvalid, errors.CodePortInvalid, errors.CodeNoValidPorts,
		errors.CodeGrammarUnrecognized, errors.CodeGrammarUnsupported, errors.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
