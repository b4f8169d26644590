package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lablink/labtemplates/internal/shell/api"
	"github.com/lablink/labtemplates/internal/shell/api/middleware"
	"github.com/lablink/labtemplates/internal/shell/identity"
	"github.com/lablink/labtemplates/internal/shell/seed"
	"github.com/lablink/labtemplates/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitSeedError       = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the lab template application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      *store.SQLStore
	logger     *slog.Logger
}

// NewServer opens the store, applies the optional seed file and builds the
// HTTP server.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.New(cfg.Database.Driver, cfg.Database.ConnectionString())
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}
	s.ConfigurePool(cfg.Database.Pool())
	logger.Info("store opened", "driver", s.Driver())

	if cfg.Seed.File != "" {
		result, err := seed.ApplyFile(ctx, s, cfg.Seed.File, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "Seed",
				Err:      err,
				ExitCode: ExitSeedError,
			}
		}
		logger.Info("seed applied",
			"file", cfg.Seed.File,
			"created", result.Created,
			"skipped", result.Skipped,
		)
	}

	idClient := identity.NewClient(identity.Config{
		BaseURL: cfg.Identity.URL,
		Timeout: cfg.Identity.Timeout,
	}, logger)

	handler := api.NewHandler(s, idClient, middleware.NewMetrics(), logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		logger:     logger,
	}, nil
}

// Start serves HTTP until a signal arrives, ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"identity_url", s.config.Identity.URL)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.store.Close()
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown drains in-flight requests, then closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
