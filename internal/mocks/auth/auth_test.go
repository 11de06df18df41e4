package auth

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeIdentityProvider_SignIn(t *testing.T) {
	ctx := context.Background()
	p := NewFakeIdentityProvider()
	p.AddAccount("ada@example.com", Account{UserID: "u1", Password: "secret1"})
	p.AddAccount("new@example.com", Account{UserID: "u2", Password: "secret1", Unverified: true})

	sess, err := p.SignInWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.True(t, sess.Active())

	current, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sess.AccessToken, current.AccessToken)

	_, err = p.SignInWithPassword(ctx, "ada@example.com", "wrong")
	assert.Equal(t, apperrors.ReasonInvalidCredentials, apperrors.GetField(err))

	_, err = p.SignInWithPassword(ctx, "nobody@example.com", "x")
	assert.Equal(t, apperrors.ReasonUnknownAccount, apperrors.GetField(err))

	_, err = p.SignInWithPassword(ctx, "new@example.com", "secret1")
	assert.Equal(t, apperrors.ReasonUnverified, apperrors.GetField(err))
	assert.EqualValues(t, 4, p.SignInCalls.Load())
}

func TestFakeIdentityProvider_Subscriptions(t *testing.T) {
	p := NewFakeIdentityProvider()
	p.EmitOnSignIn = true
	p.AddAccount("ada@example.com", Account{UserID: "u1", Password: "pw"})

	var got []domainauth.EventKind
	unsubscribe := p.OnSessionChange(func(ev domainauth.Event) { got = append(got, ev.Kind) })
	assert.Equal(t, 1, p.Subscribers())

	_, err := p.SignInWithPassword(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventSignedOut}, got)

	unsubscribe()
	assert.Equal(t, 0, p.Subscribers())
}

func TestMemoryProfileStore_UpdateBumpsTimestamp(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryProfileStore(&model.Profile{ID: "u1", UpdatedAt: fixed})
	store.Now = func() time.Time { return fixed }

	name := "Ada"
	p, err := store.Update(context.Background(), "u1", model.ProfileChanges{FullName: &name})
	require.NoError(t, err)
	assert.True(t, p.UpdatedAt.After(fixed))
	assert.Equal(t, "Ada", p.FullName)

	_, err = store.GetByID(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemorySessionPersister(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySessionPersister()
	require.NoError(t, m.Save(ctx, "k", domainauth.Session{UserID: "u1"}, time.Hour))

	got, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Load(ctx, "k")
	assert.True(t, apperrors.IsNotFound(err))
}
