package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/airvpn-bridge/internal/coordinator"
	"github.com/rickgao/airvpn-bridge/internal/fetcher"
	"github.com/rickgao/airvpn-bridge/internal/model"
	"github.com/rickgao/airvpn-bridge/internal/sensor"
	"github.com/rickgao/airvpn-bridge/internal/stream"
	"github.com/rickgao/airvpn-bridge/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	healthCheckTimeout = 5 * time.Second
	defaultReadTimeout = 10 * time.Second
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Coordinator is the polling side the server reports on and drives.
type Coordinator interface {
	Current() *model.Snapshot
	Status() coordinator.Status
	RefreshNow(ctx context.Context) error
}

// StateSource provides the projected states.
type StateSource interface {
	States() []sensor.State
	Available() bool
}

// Check is a named dependency verified by /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	Addr        string // host:port to listen on
	MetricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h at the configured metrics path.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStream serves the live state stream.
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithCheck adds a dependency to /health. A failing check makes the bridge
// unhealthy.
func WithCheck(name string, ping func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, Check{Name: name, Ping: ping})
	}
}

// Server is the bridge's HTTP surface.
type Server struct {
	cfg     Config
	coord   Coordinator
	states  StateSource
	logger  *slog.Logger
	metrics http.Handler
	stream  http.Handler
	checks  []Check

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a server. Call Start to listen.
func New(cfg Config, coord Coordinator, states StateSource, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		cfg:    cfg,
		coord:  coord,
		states: states,
		logger: logger.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/states", s.handleStates)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	if s.stream != nil {
		mux.Handle("GET /api/websocket", s.stream)
	}
	if s.metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics)
	}

	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.New("server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	s.wg.Wait()
	s.logger.Info("http server stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	st := s.coord.Status()
	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     healthOf(st, s.coord.Current() != nil),
		Version:    version.Version,
		Components: make(map[string]any),
	}
	health.Components["coordinator"] = statusViewOf(st)

	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			health.Status = StatusUnhealthy
			health.Components[c.Name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components[c.Name] = "connected"
		}
	}

	code := http.StatusOK
	if health.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// healthOf maps refresh status to a health status. A failed cycle that still
// has an older snapshot to serve is degraded rather than unhealthy.
func healthOf(st coordinator.Status, haveSnapshot bool) string {
	switch {
	case st.LastResult == coordinator.ResultSuccess:
		return StatusHealthy
	case st.LastResult == coordinator.ResultFailed && haveSnapshot:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusViewOf(s.coord.Status()))
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states := s.states.States()
	views := make([]stream.StateView, 0, len(states))
	for _, st := range states {
		views = append(views, stream.ViewOf(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": s.states.Available(),
		"count":     len(views),
		"states":    views,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.coord.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snapshotView{
		User:      snap.User,
		Devices:   snap.Devices,
		Sessions:  snap.Sessions,
		FetchedAt: snap.FetchedAt,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.coord.RefreshNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusViewOf(s.coord.Status()))
	case errors.Is(err, coordinator.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case r.Context().Err() != nil:
		// Client went away; the shared refresh keeps running.
		s.logger.Debug("refresh request abandoned", "error", err)
	default:
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":    err.Error(),
				"kind":     fe.Kind.String(),
				"endpoint": fe.Endpoint,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
