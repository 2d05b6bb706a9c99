package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"dietpi-dashboard/internal/auth"
	"dietpi-dashboard/internal/command"
	"dietpi-dashboard/internal/model"
	"dietpi-dashboard/internal/session"
)

type Options struct {
	MaxSessions     int
	ReadLimit       int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	CollectInterval time.Duration
	// OriginPatterns lists extra hosts allowed to open browser websockets.
	OriginPatterns []string
}

// Health reports process health for /healthz.
type Health interface {
	Report() any
}

// Server accepts dashboard clients over HTTP and websocket.
type Server struct {
	logger   *slog.Logger
	opts     Options
	auth     *auth.Authenticator
	sessions *session.Manager
	executor *command.Executor
	health   Health
	topics   model.TopicSet
	notice   func() string
	slots    *semaphore.Weighted
	now      func() time.Time

	refused atomic.Uint64
}

type Deps struct {
	Auth     *auth.Authenticator
	Sessions *session.Manager
	Executor *command.Executor
	Health   Health
	// Topics are the topics the collector produces.
	Topics model.TopicSet
	// UpdateNotice returns a pending DietPi update version, if any.
	UpdateNotice func() string
}

func New(logger *slog.Logger, opts Options, deps Deps) *Server {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Server{
		logger:   logger,
		opts:     opts,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		executor: deps.Executor,
		health:   deps.Health,
		topics:   deps.Topics,
		notice:   deps.UpdateNotice,
		slots:    semaphore.NewWeighted(int64(opts.MaxSessions)),
		now:      time.Now,
	}
}

// Refused counts connections turned away because the session cap was hit.
func (s *Server) Refused() uint64 { return s.refused.Load() }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx ends, then closes every session and
// shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsCfg *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen gateway %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, tlsCfg)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsCfg *tls.Config) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsCfg,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway serve: %w", err)
	case <-ctx.Done():
	}

	closed := s.sessions.CloseAll(session.ReasonShutdown)
	s.logger.Info("gateway stopping", "sessions_closed", closed)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var report any = map[string]any{"status": "ok"}
	if s.health != nil {
		report = s.health.Report()
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
