// Package api exposes the HTTP surface: the chat endpoint, knowledge-base
// stats, and liveness/readiness probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docchat/internal/chat"
)

// ChatService handles one conversational exchange. Satisfied by *chat.Service.
type ChatService interface {
	Chat(ctx context.Context, message string, sessionID *int64) (chat.Response, error)
}

// StatsStore reports the size of the knowledge base. Satisfied by *store.Store.
type StatsStore interface {
	DocumentCount(ctx context.Context) (int64, error)
}

// Pinger checks database connectivity for the readiness probe.
// Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config contains the dependencies for creating a Server.
type Config struct {
	Chat   ChatService
	Store  StatsStore
	Pinger Pinger // optional: nil makes /ready unconditionally ready
	Logger *slog.Logger
}

// Server routes HTTP requests to the chat and stats handlers.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	chatHandler := &chatHandler{chat: cfg.Chat, store: cfg.Store, logger: logger}
	statsHandler := &statsHandler{store: cfg.Store, logger: logger}
	healthHandler := &healthHandler{pinger: cfg.Pinger}

	mux.HandleFunc("POST /chat", chatHandler.handle)
	mux.HandleFunc("GET /stats", statsHandler.handle)
	healthHandler.registerRoutes(mux)

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the routes wrapped in the middleware stack:
// Recovery → RequestID → Logging → routes.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestID(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// with a 10 second drain window.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		<-errCh
		s.logger.Info("http server stopped")
		return nil
	}
}
