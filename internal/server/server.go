// Package server exposes the latest trace report over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tracecollapse/internal/config"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	srv     *http.Server
	handler *Handler
	logger  *slog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      SetupRouter(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		srv:     srv,
		handler: handler,
		logger:  logger,
	}
}

// Run serves until ctx is cancelled, building the first report in the
// background, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		if _, err := s.handler.Refresh(ctx); err != nil {
			s.logger.Error("Initial report failed", "error", err)
		}
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
