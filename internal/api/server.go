package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/mqttlink/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlink/internal/journal"
	"github.com/nerrad567/mqttlink/internal/link"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Link is the part of *link.Link the API reads and drives.
type Link interface {
	State() link.ConnectionState
	ClientID() string
	Subscriptions() []link.TopicQoS
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

var _ Link = (*link.Link)(nil)

// HealthChecker reports whether a backing store is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Link    Link
	Journal journal.Repository // optional: /events returns 404 without it
	Store   HealthChecker      // optional: reported by /health
	Hub     *Hub               // optional: created from Config.WebSocket when nil
	Version string
}

// Server is the HTTP status API.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	link    Link
	journal journal.Repository
	store   HealthChecker
	hub     *Hub
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates an API server. Call Start to begin serving.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("link is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Config.WebSocket, deps.Logger)
	}

	return &Server{
		cfg:     deps.Config,
		hub:     hub,
		logger:  deps.Logger.With("component", "api"),
		link:    deps.Link,
		journal: deps.Journal,
		store:   deps.Store,
		version: deps.Version,
	}, nil
}

// Start binds the listen address and serves in a background goroutine.
// Requests inherit ctx, so cancelling it aborts in-flight handlers.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	srv, done := s.server, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub returns the event stream hub served at /api/v1/ws.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects WebSocket clients and gracefully shuts the server down.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Shutdown does not track hijacked connections.
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-done

	s.logger.Info("API server stopped")
	return nil
}
