package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func sampleSession() domainauth.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return domainauth.Session{
		UserID:       "user-123",
		Email:        "user@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func TestSessionPersister_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)
	ctx := context.Background()
	sess := sampleSession()

	require.NoError(t, store.Save(ctx, "current", sess, time.Hour))

	got, err := store.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, sess.AccessToken, got.AccessToken)
	assert.Equal(t, sess.RefreshToken, got.RefreshToken)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestSessionPersister_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)

	_, err := store.Load(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Load(context.Background(), "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionPersister_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "current", sampleSession(), time.Hour))
	require.NoError(t, store.Delete(ctx, "current"))
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Load(ctx, "current")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionPersister_TTL(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "short", sampleSession(), 100*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	_, err := store.Load(ctx, "short")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionPersister_CustomPrefix(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersisterWithPrefix(client, "test-prefix:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "current", sampleSession(), time.Hour))

	assert.Equal(t, int64(1), client.Exists(ctx, "test-prefix:current").Val())
}

func TestSessionPersister_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, DefaultPrefix+"current", "{not json", time.Hour).Err())

	_, err := store.Load(ctx, "current")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, int64(0), client.Exists(ctx, DefaultPrefix+"current").Val())
}

func TestSessionPersister_SaveValidation(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionPersister(client)
	ctx := context.Background()

	err := store.Save(ctx, "", sampleSession(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session key cannot be empty")

	err = store.Save(ctx, "current", domainauth.Session{UserID: "u"}, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}
