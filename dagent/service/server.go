package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/dialagent/dagent/config"
)

// Server runs the HTTP surface and owns its graceful shutdown. No write
// timeout is set on purpose: streamed completions hold the response open
// for as long as the conversation runs.
type Server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	handler *Handler
	http    *http.Server
}

// NewServer builds the server from loaded configuration.
func NewServer(cfg *config.Config, logger zerolog.Logger) *Server {
	handler := NewHandler(cfg, logger)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		http: &http.Server{
			Addr:              cfg.Server.Address(),
			Handler:           handler.Routes(),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is canceled, then drains in-flight requests
// within the configured shutdown timeout and releases agent resources.
func (s *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("address", s.http.Addr).
			Str("deployment", s.cfg.Server.DeploymentName).
			Msg("server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := s.handler.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("resource cleanup failed")
	}
	return <-serveErr
}
