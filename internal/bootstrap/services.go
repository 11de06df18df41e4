package bootstrap

import (
	"database/sql"
	"log/slog"

	"github.com/accountdesk/accountdesk/config"
	"github.com/accountdesk/accountdesk/internal/adapters/authroles"
	"github.com/accountdesk/accountdesk/internal/adapters/avatars"
	"github.com/accountdesk/accountdesk/internal/data"
	"github.com/accountdesk/accountdesk/internal/ports"
	"github.com/accountdesk/accountdesk/internal/service"
)

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Sessions *service.SessionStore
	Auth     *service.AuthService
	Profiles *service.ProfileService
	Admin    *service.AdminService
	Notices  *service.NoticeBoard
}

// ServiceDeps contains the infrastructure the services are built on.
type ServiceDeps struct {
	Config   *config.AppConfig
	Provider ports.IdentityProvider
	// Store defaults to the Postgres profile repository on DB.
	Store   ports.ProfileStore
	DB      *sql.DB
	Avatars ports.AvatarStore
	Metrics service.Metrics
	Logger  *slog.Logger
}

// NewServices wires the session store and the account services. The session
// store is not started; call Sessions.Start once the caller is ready to
// receive state.
func NewServices(deps *ServiceDeps) ServiceContainer {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := deps.Store
	if store == nil {
		store = data.NewProfileRepo(deps.DB)
	}
	avatarStore := deps.Avatars
	if avatarStore == nil {
		avatarStore = avatars.DataURLStore{MaxBytes: cfg.Profiles.MaxAvatarBytes}
	}

	resolver := service.NewAuthorizationResolver(service.AuthorizationResolverOptions{
		Profiles: store,
		Roles:    authroles.ProfileRoleMapper{},
		Config: service.AuthorizationConfig{
			TTL:     cfg.Session.RoleTTL,
			Timeout: cfg.Session.RoleLookupTimeout,
			Logger:  logger.With("component", "authorization"),
			Metrics: deps.Metrics,
		},
	})

	sessions := service.NewSessionStore(service.SessionStoreOptions{
		Provider: deps.Provider,
		Resolver: resolver,
		Config: service.SessionStoreConfig{
			Logger:  logger.With("component", "sessions"),
			Metrics: deps.Metrics,
		},
	})

	notices := service.NewNoticeBoard(cfg.Session.NoticeTTL)

	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider: deps.Provider,
		Sessions: sessions,
		Deps: service.AuthServiceDeps{
			Profiles: store,
			Notices:  notices,
			Policy: service.AuthPolicy{
				MinPasswordLength:    cfg.Auth.MinPasswordLength,
				RevealUnknownAccount: cfg.Auth.RevealUnknownAccount,
				ResetRedirectURL:     cfg.Auth.Hosted.ResetRedirectURL,
				ResetInterval:        cfg.Session.ResetInterval,
				ResetBurst:           cfg.Session.ResetBurst,
			},
			Logger:  logger.With("component", "auth"),
			Metrics: deps.Metrics,
		},
	})

	profiles := service.NewProfileService(service.ProfileServiceOptions{
		Profiles: store,
		Sessions: sessions,
		Deps: service.ProfileServiceDeps{
			Avatars:        avatarStore,
			Notices:        notices,
			Logger:         logger.With("component", "profiles"),
			Metrics:        deps.Metrics,
			PhoneRegion:    cfg.Profiles.PhoneRegion,
			MaxAvatarBytes: cfg.Profiles.MaxAvatarBytes,
		},
	})

	admin := service.NewAdminService(service.AdminServiceOptions{
		Profiles: store,
		Sessions: sessions,
		Deps: service.AdminServiceDeps{
			Notices:     notices,
			Logger:      logger.With("component", "admin"),
			Metrics:     deps.Metrics,
			PhoneRegion: cfg.Profiles.PhoneRegion,
		},
	})

	return ServiceContainer{
		Sessions: sessions,
		Auth:     auth,
		Profiles: profiles,
		Admin:    admin,
		Notices:  notices,
	}
}
