// Package http provides the REST API, WebSocket events, and health endpoints.
package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/session"
)

// Version is reported by /health.
var Version = "dev"

// AvailabilitySource reports whether the remote allocation service is reachable.
type AvailabilitySource interface {
	Available() bool
}

// Server provides the HTTP API.
type Server struct {
	server   *http.Server
	handler  *Handler
	sessions *session.Manager
	hub      *Hub
	monitor  AvailabilitySource
	logger   *zap.Logger
}

// NewServer creates a new HTTP server. monitor may be nil.
func NewServer(
	address string,
	sessions *session.Manager,
	hub *Hub,
	monitor AvailabilitySource,
	logger *zap.Logger,
) *Server {
	s := &Server{
		handler:  NewHandler(sessions, logger),
		sessions: sessions,
		hub:      hub,
		monitor:  monitor,
		logger:   logger,
	}

	s.server = &http.Server{
		Addr:         address,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Routes returns the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/v1/sessions", s.handler.HandleCreateSession)
	mux.HandleFunc(sessionsPrefix, s.handler.HandleSession)

	if s.hub != nil {
		mux.HandleFunc("/api/v1/ws/events", func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeWS(w, r, s.logger)
		})
	}
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) backendAvailable() bool {
	return s.monitor != nil && s.monitor.Available()
}

func (s *Server) mode() string {
	if s.backendAvailable() {
		return "full"
	}
	return "static-only"
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// handleHealth reports "degraded" while the remote service is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
		Services: map[string]string{
			"sessions": "healthy",
		},
	}

	if s.backendAvailable() {
		response.Services["allocation_service"] = "healthy"
	} else {
		response.Services["allocation_service"] = "unavailable"
		response.Status = "degraded"
	}

	if s.hub != nil {
		response.Services["websocket"] = "healthy"
	} else {
		response.Services["websocket"] = "not configured"
	}

	writeJSON(w, http.StatusOK, response)
}

// handleLiveness handles the /health/live endpoint (Kubernetes liveness probe).
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Static strategies are always computable, so readiness never depends on the remote service.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "session manager not initialized",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"mode":   s.mode(),
	})
}

// MetricsResponse represents the metrics response.
type MetricsResponse struct {
	Sessions         int    `json:"sessions"`
	WebSocketClients int    `json:"websocket_clients"`
	BackendAvailable bool   `json:"backend_available"`
	Mode             string `json:"mode"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	response := MetricsResponse{
		BackendAvailable: s.backendAvailable(),
		Mode:             s.mode(),
	}
	if s.sessions != nil {
		response.Sessions = s.sessions.Count()
	}
	if s.hub != nil {
		response.WebSocketClients = s.hub.GetClientCount()
	}
	writeJSON(w, http.StatusOK, response)
}
