// Package filestore persists the provider session as a private JSON file, for
// command-line use where no Redis is configured.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

type envelope struct {
	Session   domainauth.Session `json:"session"`
	ExpiresAt time.Time          `json:"expires_at,omitzero"`
}

// SessionPersister stores one file per key under Dir.
type SessionPersister struct {
	dir   string
	clock func() time.Time
}

// NewSessionPersister creates dir (0700) if needed.
func NewSessionPersister(dir string) (*SessionPersister, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &SessionPersister{dir: dir, clock: time.Now}, nil
}

// DefaultDir returns the per-user directory for saved sessions.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "accountdesk"), nil
}

func (s *SessionPersister) Save(_ context.Context, key string, sess domainauth.Session, ttl time.Duration) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	env := envelope{Session: sess}
	if ttl > 0 {
		env.ExpiresAt = s.clock().Add(ttl).UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *SessionPersister) Load(ctx context.Context, key string) (domainauth.Session, error) {
	path, err := s.path(key)
	if err != nil {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("read session: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || (!env.ExpiresAt.IsZero() && s.clock().After(env.ExpiresAt)) {
		if delErr := s.Delete(ctx, key); delErr != nil {
			return domainauth.Session{}, delErr
		}
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	return env.Session, nil
}

func (s *SessionPersister) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionPersister) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid session key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
