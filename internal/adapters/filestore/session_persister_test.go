package filestore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

func newPersister(t *testing.T) *SessionPersister {
	t.Helper()
	p, err := NewSessionPersister(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return p
}

func session() domainauth.Session {
	return domainauth.Session{UserID: "u1", Email: "u1@example.com", AccessToken: "a", RefreshToken: "r"}
}

func TestSessionPersister_RoundTrip(t *testing.T) {
	p := newPersister(t)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "current", session(), time.Hour))

	got, err := p.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(p.dir, "current.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	require.NoError(t, p.Delete(ctx, "current"))
	_, err = p.Load(ctx, "current")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionPersister_Expiry(t *testing.T) {
	p := newPersister(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.clock = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "current", session(), time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := p.Load(ctx, "current")
	assert.True(t, apperrors.IsNotFound(err))
	_, statErr := os.Stat(filepath.Join(p.dir, "current.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionPersister_RejectsPathKeys(t *testing.T) {
	p := newPersister(t)
	ctx := context.Background()

	assert.Error(t, p.Save(ctx, "../escape", session(), 0))
	assert.Error(t, p.Save(ctx, "", session(), 0))
	_, err := p.Load(ctx, "../escape")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, p.Delete(ctx, "../escape"))
}

func TestSessionPersister_CorruptFile(t *testing.T) {
	p := newPersister(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.dir, "current.json"), []byte("{"), 0o600))

	_, err := p.Load(context.Background(), "current")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNewSessionPersister_RequiresDir(t *testing.T) {
	_, err := NewSessionPersister("  ")
	assert.Error(t, err)
}
