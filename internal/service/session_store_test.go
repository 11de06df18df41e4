package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/mocks/auth"
)

func TestNewSessionStore_RequiredDependencies(t *testing.T) {
	resolver := NewAuthorizationResolver(AuthorizationResolverOptions{Profiles: auth.NewMemoryProfileStore()})

	assert.Panics(t, func() {
		NewSessionStore(SessionStoreOptions{Resolver: resolver})
	})
	assert.Panics(t, func() {
		NewSessionStore(SessionStoreOptions{Provider: auth.NewFakeIdentityProvider()})
	})
}

func TestSessionStore_Start(t *testing.T) {
	t.Run("no persisted session", func(t *testing.T) {
		h := newHarness(t)
		assert.True(t, h.sessions.Current().Initializing())

		st := h.start(t)

		assert.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)
		assert.Nil(t, st.Identity)
		assert.False(t, st.IsAdmin)
		assert.Equal(t, uint64(1), st.Version)
		assert.Equal(t, 1, h.provider.Subscribers())
		select {
		case <-h.sessions.Ready():
		default:
			t.Fatal("ready channel not closed after Start")
		}
	})

	t.Run("persisted admin session", func(t *testing.T) {
		h := newHarness(t)
		sess := h.provider.Session(adminID, adminEmail)
		h.provider.SetCurrent(&sess)

		st := h.start(t)

		require.True(t, st.Authenticated())
		assert.Equal(t, adminID, st.UserID())
		assert.True(t, st.IsAdmin)
		assert.True(t, st.RoleResolved)
		assert.Equal(t, domainauth.RoleAdmin, st.Role())
	})

	t.Run("query failure ends unauthenticated", func(t *testing.T) {
		h := newHarness(t)
		h.provider.CurrentFunc = func(context.Context) (*domainauth.Session, error) {
			return nil, errors.New("storage unavailable")
		}

		st := h.start(t)

		assert.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)
	})

	t.Run("role lookup failure is non-admin", func(t *testing.T) {
		h := newHarness(t)
		h.profiles.GetErr = errors.New("connection reset")
		sess := h.provider.Session(adminID, adminEmail)
		h.provider.SetCurrent(&sess)

		st := h.start(t)

		require.True(t, st.Authenticated())
		assert.False(t, st.IsAdmin)
		assert.True(t, st.RoleResolved)
	})

	t.Run("missing profile is non-admin", func(t *testing.T) {
		h := newHarness(t)
		sess := h.provider.Session("user-without-profile", "ghost@example.com")
		h.provider.SetCurrent(&sess)

		st := h.start(t)

		require.True(t, st.Authenticated())
		assert.False(t, st.IsAdmin)
		assert.Equal(t, domainauth.RoleUser, st.Role())
	})

	t.Run("caller giving up does not decide the role", func(t *testing.T) {
		h := newHarness(t)
		sess := h.provider.Session(adminID, adminEmail)
		h.provider.SetCurrent(&sess)
		entered, release := h.blockLookups(adminID)
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan domainauth.State, 1)
		go func() {
			st, err := h.sessions.Start(ctx)
			assert.NoError(t, err)
			started <- st
		}()
		<-entered
		cancel()

		st := <-started
		assert.False(t, st.Initializing())
		assert.False(t, st.IsAdmin)

		release()
		waitFor(t, func() bool {
			cur := h.sessions.Current()
			return cur.Authenticated() && cur.RoleResolved
		})
		assert.Equal(t, adminID, h.sessions.Current().UserID())
		assert.True(t, h.sessions.Current().IsAdmin)
	})

	t.Run("second start waits for the first", func(t *testing.T) {
		h := newHarness(t)
		first := h.start(t)
		second, err := h.sessions.Start(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("closed store", func(t *testing.T) {
		h := newHarness(t)
		h.sessions.Close()
		_, err := h.sessions.Start(context.Background())
		assert.ErrorIs(t, err, ErrSessionStoreClosed)
	})
}

func TestSessionStore_FollowsProviderEvents(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	sess := h.provider.Session(userID, userEmail)
	h.provider.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: &sess})
	waitFor(t, func() bool {
		st := h.sessions.Current()
		return st.Authenticated() && st.RoleResolved
	})
	assert.Equal(t, userID, h.sessions.Current().UserID())
	assert.False(t, h.sessions.Current().IsAdmin)

	h.provider.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	waitFor(t, func() bool {
		return h.sessions.Current().Phase == domainauth.PhaseUnauthenticated
	})
	_, fresh := h.resolver.Cached(userID)
	assert.False(t, fresh, "sign-out drops the memoized role")
}

func TestSessionStore_TokenRefreshReusesRole(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, adminEmail)
	require.Equal(t, int32(1), h.profiles.GetCalls.Load())

	refreshed := h.provider.Session(adminID, adminEmail)
	h.provider.Emit(domainauth.Event{Kind: domainauth.EventTokenRefreshed, Session: &refreshed})

	waitFor(t, func() bool {
		st := h.sessions.Current()
		return st.Identity != nil && st.Identity.Token == refreshed.AccessToken
	})
	st := h.sessions.Current()
	assert.True(t, st.IsAdmin)
	assert.Equal(t, int32(1), h.profiles.GetCalls.Load(), "fresh role is not looked up again")
}

func TestSessionStore_TokenRefreshAfterTTLRequeries(t *testing.T) {
	h := newHarness(t, withRoleTTL(0))
	h.start(t)
	h.signIn(t, adminEmail)

	refreshed := h.provider.Session(adminID, adminEmail)
	h.provider.Emit(domainauth.Event{Kind: domainauth.EventTokenRefreshed, Session: &refreshed})

	waitFor(t, func() bool { return h.profiles.GetCalls.Load() == 2 })
	waitFor(t, func() bool {
		st := h.sessions.Current()
		return st.Identity != nil && st.Identity.Token == refreshed.AccessToken && st.RoleResolved
	})
	assert.True(t, h.sessions.Current().IsAdmin)
}

func TestSessionStore_IdentityChangeResetsAdmin(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	st := h.signIn(t, adminEmail)
	require.True(t, st.IsAdmin)

	entered, release := h.blockLookups(userID)
	defer release()

	other := h.provider.Session(userID, userEmail)
	h.provider.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: &other})
	<-entered

	// The new identity is visible before its role is known, never as admin.
	waitFor(t, func() bool { return h.sessions.Current().UserID() == userID })
	mid := h.sessions.Current()
	assert.False(t, mid.IsAdmin)
	assert.False(t, mid.RoleResolved)

	release()
	waitFor(t, func() bool { return h.sessions.Current().RoleResolved })
	final := h.sessions.Current()
	assert.Equal(t, userID, final.UserID())
	assert.False(t, final.IsAdmin)
}

func TestSessionStore_StaleResolutionDiscarded(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	entered, release := h.blockLookups(adminID)
	defer release()

	type result struct {
		st  domainauth.State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := h.auth.SignIn(context.Background(), adminEmail, password)
		done <- result{st, err}
	}()
	<-entered

	cleared := h.sessions.Clear("test")
	assert.Equal(t, domainauth.PhaseUnauthenticated, cleared.Phase)
	release()

	res := <-done
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), sessionChangedMessage)
	assert.Equal(t, domainauth.PhaseUnauthenticated, h.sessions.Current().Phase)
	assert.False(t, h.sessions.Current().IsAdmin)
}

func TestSessionStore_SignOutDropsQueuedEvents(t *testing.T) {
	for _, tc := range []struct {
		name       string
		signOutErr error
	}{
		{name: "provider sign-out fails", signOutErr: errors.New("network down")},
		{name: "provider sign-out succeeds"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, withRoleTTL(0))
			h.start(t)
			h.signIn(t, adminEmail)

			entered, release := h.blockLookups(adminID)
			defer release()
			for range 2 {
				refreshed := h.provider.Session(adminID, adminEmail)
				h.provider.Emit(domainauth.Event{Kind: domainauth.EventTokenRefreshed, Session: &refreshed})
			}
			<-entered

			if tc.signOutErr != nil {
				h.provider.SignOutFunc = func(context.Context) error { return tc.signOutErr }
			}
			st, err := h.auth.SignOut(context.Background())
			require.NoError(t, err)
			require.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)
			release()

			// Events queued after the sign-out still apply, in order, after
			// the stale ones: exactly one transition separates the two states.
			next := h.provider.Session(userID, userEmail)
			h.provider.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: &next})
			waitFor(t, func() bool {
				cur := h.sessions.Current()
				return cur.UserID() == userID && cur.RoleResolved
			})
			final := h.sessions.Current()
			assert.Equal(t, st.Version+1, final.Version, "signed-out identity was re-established")
			assert.False(t, final.IsAdmin)
		})
	}
}

func TestSessionStore_CallerCancelDoesNotDecideRole(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	entered, release := h.blockLookups(adminID)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := h.auth.SignIn(ctx, adminEmail, password)
		errs <- err
	}()
	<-entered
	cancel()
	require.Error(t, <-errs)
	assert.False(t, h.sessions.Current().RoleResolved)

	release()
	waitFor(t, func() bool {
		st := h.sessions.Current()
		return st.Authenticated() && st.RoleResolved
	})
	st := h.sessions.Current()
	assert.Equal(t, adminID, st.UserID())
	assert.True(t, st.IsAdmin, "late lookup result is applied")
}

func TestSessionStore_SharesPendingLookup(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	entered, release := h.blockLookups(adminID)
	defer release()

	first := h.provider.Session(adminID, adminEmail)
	h.provider.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: &first})
	<-entered

	second := h.provider.Session(adminID, adminEmail)
	done := make(chan domainauth.State, 1)
	go func() {
		st, err := h.sessions.Establish(context.Background(), second.Identity())
		assert.NoError(t, err)
		done <- st
	}()

	waitFor(t, func() bool {
		h.sessions.mu.Lock()
		defer h.sessions.mu.Unlock()
		return h.sessions.pendingTok.Token == second.AccessToken
	})
	release()

	st := <-done
	require.True(t, st.Authenticated())
	assert.True(t, st.IsAdmin)
	assert.Equal(t, second.AccessToken, st.Identity.Token, "newest token wins")
	assert.Equal(t, int32(1), h.profiles.GetCalls.Load())
}

func TestSessionStore_RefreshRole(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	p, _ := h.profiles.Peek(userID)
	p.IsAdmin = true
	h.profiles.Put(p)

	st, err := h.sessions.RefreshRole(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsAdmin)
	assert.Equal(t, int32(2), h.profiles.GetCalls.Load())
}

func TestSessionStore_RefreshRoleUnauthenticated(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	st, err := h.sessions.RefreshRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)
	assert.Zero(t, h.profiles.GetCalls.Load())
}

func TestSessionStore_Subscribe(t *testing.T) {
	t.Run("latest wins", func(t *testing.T) {
		h := newHarness(t)
		ch, cancel := h.sessions.Subscribe()
		defer cancel()

		initial := <-ch
		assert.True(t, initial.Initializing())

		h.start(t)
		h.signIn(t, userEmail)
		h.sessions.Clear("test")

		latest := <-ch
		assert.Equal(t, h.sessions.Current(), latest)
		select {
		case extra := <-ch:
			t.Fatalf("unexpected buffered state %+v", extra)
		default:
		}
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		h := newHarness(t)
		ch, cancel := h.sessions.Subscribe()
		<-ch
		cancel()
		cancel()
		_, ok := <-ch
		assert.False(t, ok)
	})

	t.Run("close ends every subscription", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		ch, _ := h.sessions.Subscribe()
		<-ch

		h.sessions.Close()

		_, ok := <-ch
		assert.False(t, ok)
		assert.Equal(t, 0, h.provider.Subscribers())

		late, _ := h.sessions.Subscribe()
		_, ok = <-late
		assert.False(t, ok)
	})
}

func TestSessionStore_PublishedStatesAreValid(t *testing.T) {
	h := newHarness(t)

	var (
		mu     sync.Mutex
		states []domainauth.State
	)
	ctx, cancel := context.WithCancel(context.Background())
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		h.sessions.Watch(ctx, func(st domainauth.State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, st)
		})
	}()

	h.start(t)
	h.signIn(t, adminEmail)
	h.signIn(t, userEmail)
	_, err := h.auth.SignOut(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1].Version == h.sessions.Current().Version
	})
	cancel()
	<-watching

	mu.Lock()
	defer mu.Unlock()
	var lastVersion uint64
	for i, st := range states {
		require.NoError(t, st.Validate(), "state %d", i)
		if i > 0 {
			assert.Greater(t, st.Version, lastVersion, "versions increase")
			assert.NotEqual(t, domainauth.PhaseInitializing, st.Phase, "nothing returns to initializing")
		}
		lastVersion = st.Version
	}
}
