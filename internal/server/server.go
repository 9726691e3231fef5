// Package server exposes the retrieval and learning engine over HTTP.
//
// The API surface is small and JSON-only: one retrieval endpoint, a set of
// conversation-learning endpoints, and the usual operational routes (health,
// readiness, status, Prometheus metrics). All /api/* routes except /api/health
// and /api/ready sit behind optional Bearer authentication and a per-IP rate
// limiter.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaziNymul/carevoice-go/internal/logging"
)

const (
	defaultHost            = "127.0.0.1"
	defaultPort            = 8080
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// New creates a Server from the given engine components and configuration.
func New(deps *Deps, cfg *Config) (*Server, error) {
	if deps == nil || deps.Retriever == nil {
		return nil, fmt.Errorf("server: retriever is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("server: document store is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stopRL
	auth := authMiddleware(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/retrieve", protect(s.handleRetrieve))
	mux.Handle("POST /api/conversations", protect(s.handleStoreConversation))
	mux.Handle("POST /api/conversations/search", protect(s.handleSearchConversations))
	mux.Handle("POST /api/conversations/{id}/feedback", protect(s.handleFeedback))
	mux.Handle("POST /api/conversations/{id}/promote", protect(s.handlePromote))
	mux.Handle("GET /api/learning/stats", protect(s.handleLearningStats))
	mux.Handle("GET /api/ops", protect(s.handleOps))
	mux.Handle("GET /api/status", protect(s.handleStatus))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := requestLogger(log, s.metrics.instrument(mux))

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening",
			"addr", s.httpServer.Addr,
			"auth", s.cfg.APIKey != "",
			"search_mode", s.deps.Retriever.Mode(),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	s.stopRL()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
