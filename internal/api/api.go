package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keelhq/nurture/internal/health"
	"github.com/keelhq/nurture/internal/store"
)

// DefaultAddr is the default listen address for the admin API.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server is the admin HTTP server.
type Server struct {
	store   store.Store
	monitor *health.Monitor
	httpSrv *http.Server
}

// NewServer wires the admin API. monitor may be nil, in which case the
// health endpoint reports no workers.
func NewServer(st store.Store, monitor *health.Monitor, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{store: st, monitor: monitor}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /leads", s.listLeadsHandler)
	mux.HandleFunc("POST /leads", s.createLeadHandler)
	mux.HandleFunc("POST /leads/{id}/pause", s.pauseLeadHandler)
	mux.HandleFunc("POST /leads/{id}/followups", s.scheduleFollowUpHandler)
	mux.HandleFunc("GET /followups/{id}", s.getFollowUpHandler)
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("Server.Start: admin API listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Start: admin API failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin API shutdown failed: %w", err)
	}
	return nil
}
