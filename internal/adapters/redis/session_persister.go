// Package redis provides Redis-backed adapters.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// DefaultPrefix namespaces persisted sessions.
const DefaultPrefix = "accountdesk:session:"

// SessionPersister keeps the provider session in Redis so a restarted client
// can resume it.
type SessionPersister struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionPersister creates a persister using DefaultPrefix.
func NewSessionPersister(client redis.UniversalClient) *SessionPersister {
	return NewSessionPersisterWithPrefix(client, DefaultPrefix)
}

// NewSessionPersisterWithPrefix creates a persister with a custom key prefix.
func NewSessionPersisterWithPrefix(client redis.UniversalClient, prefix string) *SessionPersister {
	return &SessionPersister{client: client, prefix: prefix}
}

func (s *SessionPersister) Save(ctx context.Context, key string, sess domainauth.Session, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key cannot be empty")
	}
	if !sess.Active() {
		return errors.New("session has no access token")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SessionPersister) Load(ctx context.Context, key string) (domainauth.Session, error) {
	if key == "" {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// An unreadable entry is as good as none; drop it.
		if delErr := s.Delete(ctx, key); delErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup corrupt session: %w", delErr)
		}
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	return sess, nil
}

func (s *SessionPersister) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
