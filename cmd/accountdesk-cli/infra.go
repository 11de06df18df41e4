package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accountdesk/accountdesk/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

// app is one wired session for the duration of a command.
type app struct {
	bootstrap.ServiceContainer
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp connects the record store, builds the identity provider, and
// restores the saved session.
func openApp(cmdCtx *commandContext) (*app, error) {
	cfg := cmdCtx.Config
	logger := cmdCtx.Logger
	a := &app{}

	db, err := bootstrap.ConnectDB(cmdCtx.Ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	a.closers = append(a.closers, func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("db close failed", "error", closeErr)
		}
	})

	identity := bootstrap.IdentityConfig{
		Auth:           cfg.Auth,
		Session:        cfg.Session,
		RedisKeyPrefix: cfg.Redis.KeyPrefix,
		Logger:         logger,
	}
	if cfg.Redis.Enabled() {
		client, redisErr := bootstrap.ConnectRedis(cmdCtx.Ctx, cfg.Redis, logger)
		if redisErr != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", redisErr)
		}
		identity.Redis = client
		a.closers = append(a.closers, func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("redis close failed", "error", closeErr)
			}
		})
	}

	metrics, err := bootstrap.BuildMetrics(cmdCtx.Ctx, cfg.Observability.Metrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if closeErr := metrics.Close(); closeErr != nil {
			logger.Warn("metrics close failed", "error", closeErr)
		}
	})

	provider, err := bootstrap.BuildIdentityProvider(cmdCtx.Ctx, identity)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("identity provider: %w", err)
	}
	a.closers = append(a.closers, provider.Close)

	a.ServiceContainer = bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:   &cfg,
		Provider: provider,
		DB:       db,
		Metrics:  metrics.Metrics,
		Logger:   logger,
	})
	a.closers = append(a.closers, a.Sessions.Close)

	if _, err = a.Sessions.Start(cmdCtx.Ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func withApp(cmdCtx *commandContext, fn func(ctx context.Context, a *app) error) error {
	open := cmdCtx.open
	if open == nil {
		open = openApp
	}
	a, err := open(cmdCtx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()
	return fn(ctx, a)
}

type migrateOptions struct {
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}
