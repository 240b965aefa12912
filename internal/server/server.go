package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/logging"
)

// DefaultListen is the address the API listens on when none is configured
const DefaultListen = "127.0.0.1:8780"

// shutdownTimeout bounds how long Shutdown waits for in-flight requests
const shutdownTimeout = 10 * time.Second

// Backend is the part of a discovery session the API serves
type Backend interface {
	Groups(ctx context.Context) ([]discovery.Group, error)
	Devices() []discovery.Device
	Ready() bool
	Subscribe(ctx context.Context) *discovery.Subscription
}

// Config holds the server configuration
type Config struct {
	Listen string // host:port, DefaultListen when empty
}

// Server exposes a discovery session over HTTP and WebSocket
type Server struct {
	config  Config
	backend Backend
	logger  *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	watchers   map[*watchConn]struct{}
}

// New creates a new Server for backend
func New(config Config, backend Backend) *Server {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	return &Server{
		config:   config,
		backend:  backend,
		logger:   logging.Named("server"),
		watchers: make(map[*watchConn]struct{}),
	}
}

// Handler returns the API routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/groups", s.handleGroups)
	mux.HandleFunc("GET /api/groups/watch", s.handleWatch)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, "no route for "+r.URL.Path)
	})
	return logRequests(mux)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is done
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("API listening", zap.String("addr", listener.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the address the server is listening on, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, closes open watch streams and waits for
// in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API")

	s.mu.Lock()
	httpServer := s.httpServer
	watchers := make([]*watchConn, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	// Hijacked connections are not tracked by http.Server
	for _, w := range watchers {
		w.close()
	}

	if httpServer == nil {
		return nil
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return httpServer.Close()
	}
	logging.Sync()
	return nil
}

// ActiveWatchers returns the number of open watch streams
func (s *Server) ActiveWatchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Server) trackWatcher(w *watchConn, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.watchers[w] = struct{}{}
	} else {
		delete(s.watchers, w)
	}
}
