package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
)

// IdentityProvider is the hosted identity service the session store follows.
//
// Failures are returned as *errors.AppError with code credential, network,
// rate_limited or unsupported.
type IdentityProvider interface {
	// CurrentSession returns the persisted session, refreshing it if needed.
	// It returns (nil, nil) when there is none.
	CurrentSession(ctx context.Context) (*domainauth.Session, error)

	// OnSessionChange registers fn for every session creation, refresh, or
	// clearing. Delivery is at-least-once; the returned func unsubscribes.
	OnSessionChange(fn func(domainauth.Event)) (unsubscribe func())

	SignInWithPassword(ctx context.Context, email, password string) (domainauth.Session, error)

	// SignUp creates an account. The returned session has no access token
	// when the provider requires email confirmation first.
	SignUp(ctx context.Context, email, password string) (domainauth.Session, error)

	SignOut(ctx context.Context) error
	SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error

	// UpdatePassword changes the password of the currently signed-in user.
	UpdatePassword(ctx context.Context, newPassword string) error
}

// SessionPersister stores provider sessions between process runs.
type SessionPersister interface {
	Save(ctx context.Context, key string, sess domainauth.Session, ttl time.Duration) error
	Load(ctx context.Context, key string) (domainauth.Session, error)
	Delete(ctx context.Context, key string) error
}

// RoleMapper maps a user's profile to an application role. A nil profile
// means the identity has no profile row.
type RoleMapper interface {
	Map(profile *model.Profile) domainauth.Role
}

// Confirmer asks the operator to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}
