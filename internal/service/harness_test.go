package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accountdesk/accountdesk/internal/adapters/authroles"
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	mocks "github.com/accountdesk/accountdesk/internal/mocks/auth"
)

const (
	adminID    = "user-admin"
	adminEmail = "admin@example.com"
	userID     = "user-plain"
	userEmail  = "plain@example.com"
	password   = "secret123"
)

type harness struct {
	provider *mocks.FakeIdentityProvider
	profiles *mocks.MemoryProfileStore
	avatars  *mocks.MemoryAvatarStore
	resolver *AuthorizationResolver
	sessions *SessionStore
	notices  *NoticeBoard
	auth     *AuthService
	profile  *ProfileService
	admin    *AdminService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	policy  AuthPolicy
	roleTTL time.Duration
}

func withPolicy(p AuthPolicy) harnessOption {
	return func(c *harnessConfig) { c.policy = p }
}

func withRoleTTL(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.roleTTL = d }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{roleTTL: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := discardLogger()
	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount(adminEmail, mocks.Account{UserID: adminID, Password: password})
	provider.AddAccount(userEmail, mocks.Account{UserID: userID, Password: password})

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	profiles := mocks.NewMemoryProfileStore(
		&model.Profile{ID: adminID, Email: adminEmail, FullName: "Ada Admin", IsAdmin: true, CreatedAt: created, UpdatedAt: created},
		&model.Profile{ID: userID, Email: userEmail, FullName: "Paul Plain", CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour)},
	)
	avatars := &mocks.MemoryAvatarStore{}

	resolver := NewAuthorizationResolver(AuthorizationResolverOptions{
		Profiles: profiles,
		Roles:    authroles.ProfileRoleMapper{},
		Config:   AuthorizationConfig{TTL: cfg.roleTTL, Logger: logger},
	})
	sessions := NewSessionStore(SessionStoreOptions{
		Provider: provider,
		Resolver: resolver,
		Config:   SessionStoreConfig{Logger: logger},
	})
	t.Cleanup(sessions.Close)

	notices := NewNoticeBoard(time.Hour)
	h := &harness{
		provider: provider,
		profiles: profiles,
		avatars:  avatars,
		resolver: resolver,
		sessions: sessions,
		notices:  notices,
	}
	h.auth = NewAuthService(AuthServiceOptions{
		Provider: provider,
		Sessions: sessions,
		Deps:     AuthServiceDeps{Profiles: profiles, Notices: notices, Policy: cfg.policy, Logger: logger},
	})
	h.profile = NewProfileService(ProfileServiceOptions{
		Profiles: profiles,
		Sessions: sessions,
		Deps:     ProfileServiceDeps{Avatars: avatars, Notices: notices, Logger: logger},
	})
	h.admin = NewAdminService(AdminServiceOptions{
		Profiles: profiles,
		Sessions: sessions,
		Deps:     AdminServiceDeps{Notices: notices, Logger: logger},
	})
	return h
}

func (h *harness) start(t *testing.T) domainauth.State {
	t.Helper()
	st, err := h.sessions.Start(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) signIn(t *testing.T, email string) domainauth.State {
	t.Helper()
	st, err := h.auth.SignIn(context.Background(), email, password)
	require.NoError(t, err)
	require.True(t, st.Authenticated())
	return st
}

// blockLookups makes GetByID for id signal entered and wait for release.
func (h *harness) blockLookups(id string) (entered <-chan struct{}, release func()) {
	in := make(chan struct{}, 8)
	out := make(chan struct{})
	h.profiles.GetHook = func(ctx context.Context, got string) {
		if got != id {
			return
		}
		in <- struct{}{}
		select {
		case <-out:
		case <-ctx.Done():
		}
	}
	var closed bool
	return in, func() {
		if !closed {
			closed = true
			close(out)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
