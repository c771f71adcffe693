package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tfibus/internal/handler"
)

// Options configures routes that are optional.
type Options struct {
	Port    int
	Metrics http.Handler // nil disables /metrics
}

// Server is the HTTP server for the stop and arrivals API.
type Server struct {
	mux    *http.ServeMux
	srv    *http.Server
	logger *slog.Logger
	ready  chan struct{} // closed when stop data is available
}

// New creates a Server with all routes registered. ready reports whether
// stop data is already loaded; until SetReady is called, requests get 503.
func New(h *handler.Handler, opts Options, ready bool, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	readyCh := make(chan struct{})
	if ready {
		close(readyCh)
	}

	s := &Server{mux: mux, logger: logger, ready: readyCh}

	// API
	mux.HandleFunc("GET /api/stops", h.SearchStops)
	mux.HandleFunc("GET /api/stops/find", h.FindStops)
	mux.HandleFunc("GET /api/stops/near", h.NearStops)
	mux.HandleFunc("GET /api/stops/{stopId}", h.StopByID)
	mux.HandleFunc("GET /api/arrivals/{stopId}", h.Arrivals)
	mux.HandleFunc("GET /api/health", h.Health)

	// Pages
	mux.HandleFunc("GET /", h.Home)
	mux.HandleFunc("GET /stops/{stopId}", h.StopBoard)

	// SSE
	mux.HandleFunc("GET /sse/arrivals/{stopId}", h.SSEArrivals)

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           withMiddleware(mux, logger, readyCh),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// SetReady signals that stop data is available.
func (s *Server) SetReady() {
	select {
	case <-s.ready:
		// already closed
	default:
		close(s.ready)
	}
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
