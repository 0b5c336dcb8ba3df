// Package api exposes the retro pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/audio-retro/internal/config"
)

// Server represents the API server
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, h *Handlers, hc *HealthChecker) *Server {
	handler := SetupRoutes(h, hc, cfg.CORSOrigins)
	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: handler,
			// a run is synchronous and may take minutes on large exports
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      15 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
