// Package server exposes the aggregated book over HTTP and WebSocket in
// serve mode.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/quantfold/obagg/internal/domain"
	"github.com/quantfold/obagg/internal/server/handler"
	"github.com/quantfold/obagg/internal/server/middleware"
	"github.com/quantfold/obagg/internal/server/ws"
)

// idleTimeout closes keep-alive connections that stay quiet. WebSocket
// sessions are exempt once hijacked.
const idleTimeout = 60 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	APIKey       string // empty disables authentication
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int // requests per client per window; 0 disables
	RateWindow   time.Duration
}

// Handlers collects the route handlers the server mounts.
type Handlers struct {
	Health  *handler.HealthHandler
	Book    *handler.BookHandler
	Quote   *handler.QuoteHandler
	Sources *handler.SourcesHandler
	Refresh *handler.RefreshHandler
}

// Server serves the REST API and the WebSocket stream.
type Server struct {
	inner  *http.Server
	logger *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware stack,
// outermost to innermost: CORS, access log, rate limit (when a limiter is
// given), API key auth. The hub and limiter may be nil; the health check
// stays reachable without credentials.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/book", h.Book.GetBook)
	mux.HandleFunc("GET /api/book/bbo", h.Book.GetBBO)
	mux.HandleFunc("GET /api/quote", h.Quote.GetQuote)
	mux.HandleFunc("GET /api/sources", h.Sources.ListSources)
	mux.HandleFunc("POST /api/refresh", h.Refresh.TriggerRefresh)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	stack := []func(http.Handler) http.Handler{
		middleware.CORS(cfg.CORSOrigins),
		middleware.AccessLog(logger),
	}
	if limiter != nil && cfg.RateLimit > 0 {
		stack = append(stack, middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger))
	}
	stack = append(stack, middleware.APIKey(cfg.APIKey, "/api/health"))

	var root http.Handler = mux
	for i := len(stack) - 1; i >= 0; i-- {
		root = stack[i](root)
	}

	return &Server{
		inner: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      root,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start listens until the server fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.inner.Addr))
	if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("draining connections")
	if err := s.inner.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
