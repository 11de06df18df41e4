package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/accountdesk/accountdesk/config"
	"github.com/accountdesk/accountdesk/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger(false)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev {
		logger = bootstrap.InitLogger(true)
	}
	bootstrap.SetLogLevel(cfg.Observability.LogLevel)

	logStartupInfo(ctx, logger, &cfg)

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	// Run migrations if enabled
	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	metrics, err := bootstrap.BuildMetrics(ctx, cfg.Observability.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := metrics.Close(); cerr != nil {
			logger.WarnContext(ctx, "close metrics failed", "error", cerr)
		}
	}()

	provider, err := bootstrap.BuildIdentityProvider(ctx, bootstrap.IdentityConfig{
		Auth:           cfg.Auth,
		Session:        cfg.Session,
		Redis:          redisClient,
		RedisKeyPrefix: cfg.Redis.KeyPrefix,
		Logger:         logger.With("component", "identity"),
	})
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	defer provider.Close()

	services := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:   &cfg,
		Provider: provider,
		DB:       db,
		Metrics:  metrics.Metrics,
		Logger:   logger,
	})
	defer services.Sessions.Close()

	// Restoring the session runs in the background; requests that need it
	// get 503 until it settles.
	go func() {
		st, startErr := services.Sessions.Start(ctx)
		if startErr != nil && !errors.Is(startErr, context.Canceled) {
			logger.WarnContext(ctx, "session restore failed", "error", startErr)
			return
		}
		logger.InfoContext(ctx, "session ready", "phase", st.Phase, "user_id", st.UserID())
	}()

	server := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		HTTP:     cfg.HTTP,
		Services: services,
		Metrics:  metrics.Handler,
		Logger:   logger,
	})
	return bootstrap.ServeHTTP(ctx, server, cfg.HTTP.ShutdownTimeout, logger)
}

func initInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Redis.Enabled() {
		logger.Info("redis not configured; sessions persist to disk", "dir", cfg.Session.StateDir)
		return db, nil, nil
	}
	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, nil, err
	}
	return db, redisClient, nil
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting accountdesk",
		"auth_mode", cfg.Auth.Mode,
		"http_addr", cfg.HTTP.Addr,
		"metrics_sink", cfg.Observability.Metrics.Sink,
		"dev", cfg.IsDev,
	)
}
