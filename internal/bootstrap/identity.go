package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/accountdesk/accountdesk/config"
	"github.com/accountdesk/accountdesk/internal/adapters/devauth"
	"github.com/accountdesk/accountdesk/internal/adapters/filestore"
	"github.com/accountdesk/accountdesk/internal/adapters/hostedauth"
	"github.com/accountdesk/accountdesk/internal/adapters/oidc"
	redisadapter "github.com/accountdesk/accountdesk/internal/adapters/redis"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// IdentityProvider is a provider adapter that owns background refresh work.
type IdentityProvider interface {
	ports.IdentityProvider
	Close()
}

// IdentityConfig contains dependencies for building the identity provider.
type IdentityConfig struct {
	Auth    config.AuthConfig
	Session config.SessionConfig
	// Redis, when non-nil, persists sessions; otherwise they go to a file
	// under Session.StateDir.
	Redis          redis.UniversalClient
	RedisKeyPrefix string
	Logger         *slog.Logger
}

// BuildSessionPersister picks Redis when a client is configured and the
// local state directory otherwise.
//
//nolint:ireturn // the persister backend is chosen at runtime.
func BuildSessionPersister(cfg IdentityConfig) (ports.SessionPersister, error) {
	if cfg.Redis != nil {
		return redisadapter.NewSessionPersisterWithPrefix(cfg.Redis, cfg.RedisKeyPrefix), nil
	}
	p, err := filestore.NewSessionPersister(cfg.Session.StateDir)
	if err != nil {
		return nil, fmt.Errorf("session state dir: %w", err)
	}
	return p, nil
}

// BuildIdentityProvider creates the identity provider for the configured mode.
//
//nolint:ireturn // the provider is chosen at runtime.
func BuildIdentityProvider(ctx context.Context, cfg IdentityConfig) (IdentityProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	persister, err := BuildSessionPersister(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Auth.Mode {
	case config.AuthModeHosted:
		logger.Info("using hosted auth", "url", cfg.Auth.Hosted.URL)
		return hostedauth.NewProvider(hostedauth.Config{
			BaseURL:       cfg.Auth.Hosted.URL,
			APIKey:        cfg.Auth.Hosted.AnonKey,
			Timeout:       cfg.Auth.Hosted.Timeout,
			Persister:     persister,
			RefreshMargin: cfg.Session.RefreshMargin,
			Logger:        logger,
		})
	case config.AuthModeOIDC:
		logger.Info("using OIDC auth", "discovery_url", cfg.Auth.OIDC.DiscoveryURL)
		return oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:      cfg.Auth.OIDC.ClientID,
			ClientSecret:  cfg.Auth.OIDC.ClientSecret,
			Scope:         cfg.Auth.OIDC.Scope,
			DiscoveryURL:  cfg.Auth.OIDC.DiscoveryURL,
			RevocationURL: cfg.Auth.OIDC.RevocationURL,
			Persister:     persister,
			RefreshMargin: cfg.Session.RefreshMargin,
			Logger:        logger,
		})
	case config.AuthModeDev:
		return buildDevProvider(cfg, persister, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

//nolint:ireturn // matches BuildIdentityProvider.
func buildDevProvider(cfg IdentityConfig, persister ports.SessionPersister, logger *slog.Logger) (IdentityProvider, error) {
	seeds, err := cfg.Auth.DevAuth.ParseAccounts()
	if err != nil {
		return nil, err
	}
	accounts := make([]devauth.Account, 0, len(seeds))
	for _, s := range seeds {
		accounts = append(accounts, devauth.Account{UserID: s.UserID, Email: s.Email, Password: s.Password})
	}
	logger.Warn("using development auth; do not use in production", "accounts", len(accounts))
	return devauth.NewProvider(devauth.Config{
		Accounts:          accounts,
		AutoConfirm:       cfg.Auth.DevAuth.AutoConfirm,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		Persister:         persister,
		Logger:            logger,
	})
}
