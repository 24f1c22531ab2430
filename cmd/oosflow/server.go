package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/trueclassic/oosflow/internal/core/auth"
	"github.com/trueclassic/oosflow/internal/core/orders"
	"github.com/trueclassic/oosflow/internal/shell/api"
	"github.com/trueclassic/oosflow/internal/shell/fulfillment"
	"github.com/trueclassic/oosflow/internal/shell/refresh"
	"github.com/trueclassic/oosflow/internal/shell/store"
	"github.com/trueclassic/oosflow/internal/shell/warehouse"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

// =============================================================================
// Server
// =============================================================================

// Server represents the OOS workflow application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	warehouse  *warehouse.Service
	jobs       store.Store
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Warehouse client is created lazily; the server starts even before
	// BigQuery is configured and reports 503 from data endpoints.
	wh := warehouse.NewService(warehouse.Config{
		ProjectID:       cfg.Warehouse.ProjectID,
		Dataset:         cfg.Warehouse.Dataset,
		Location:        cfg.Warehouse.Location,
		CredentialsJSON: cfg.Warehouse.CredentialsJSON,
	}, logger)
	if !wh.Configured() {
		logger.Warn("warehouse not configured, data endpoints will be unavailable")
	}

	// Job journal
	var jobs store.Store
	if cfg.Jobs.DSN != "" {
		s, err := store.NewSQLiteStore(cfg.Jobs.DSN)
		if err != nil {
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
		}
		jobs = s
	} else {
		logger.Warn("job journal disabled, refresh runs will not be recorded")
	}

	// Fulfillment partners
	stord := fulfillment.NewStordClient(fulfillment.StordConfig{
		BaseURL:    cfg.Stord.BaseURL,
		APIToken:   cfg.Stord.APIToken,
		OrgID:      cfg.Stord.OrgID,
		NetworkID:  cfg.Stord.NetworkID,
		ChannelIDs: cfg.Stord.ChannelIDs,
		Statuses:   cfg.Stord.Statuses,
	}, logger)
	shipbob := fulfillment.NewShipbobClient(fulfillment.ShipbobConfig{
		BaseURL:  cfg.Shipbob.BaseURL,
		APIToken: cfg.Shipbob.APIToken,
	}, logger)

	fetchers := map[orders.Source]refresh.OrderFetcher{}
	if stord.Configured() {
		fetchers[orders.SourceStord] = refresh.OrderFetcherFunc(stord.SalesOrders)
	} else {
		logger.Warn("stord not configured, source excluded from refresh")
	}
	if shipbob.Configured() {
		fetchers[orders.SourceShipbob] = refresh.OrderFetcherFunc(shipbob.Orders)
	} else {
		logger.Warn("shipbob not configured, source excluded from refresh")
	}

	refresher := refresh.NewRefresher(fetchers, wh, jobs, logger)

	// Token issuer
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Tokens signed with an ephemeral secret do not survive restarts.
		secret = uuid.New().String()
		logger.Warn("no jwt secret configured, using an ephemeral one")
	}
	tokens := auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL)

	handler := api.NewHandler(wh, stord, shipbob, refresher, jobs, tokens, logger, api.Config{
		AppUsername:    cfg.Auth.AppUsername,
		AppPassword:    cfg.Auth.AppPassword,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
		RateLimit:      cfg.Auth.RateLimit,
		Version:        Version,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		warehouse:  wh,
		jobs:       jobs,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.jobs != nil {
		if err := s.jobs.Close(); err != nil {
			s.logger.Error("job journal close error", "error", err)
		}
	}

	if err := s.warehouse.Close(); err != nil {
		s.logger.Error("warehouse close error", "error", err)
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
