package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/accountdesk/accountdesk/config"
	httpx "github.com/accountdesk/accountdesk/internal/http"
)

// HTTPServerConfig contains configuration for the console API server.
type HTTPServerConfig struct {
	HTTP     config.HTTPConfig
	Services ServiceContainer
	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewHTTPServer builds the console API server without starting it.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler := httpx.NewRouter(httpx.RouterServices{
		Sessions:       cfg.Services.Sessions,
		Auth:           cfg.Services.Auth,
		Profiles:       cfg.Services.Profiles,
		Admin:          cfg.Services.Admin,
		Notices:        cfg.Services.Notices,
		Metrics:        cfg.Metrics,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	addr := cfg.HTTP.Addr
	// Guard against empty addr to avoid listening on every interface
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs server until ctx is canceled, then shuts it down within
// shutdownTimeout.
func ServeHTTP(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}
