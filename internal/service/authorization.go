package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// ResolutionReason explains how a role was decided.
type ResolutionReason string

const (
	ReasonAdmin      ResolutionReason = "admin"
	ReasonNotAdmin   ResolutionReason = "not_admin"
	ReasonNoProfile  ResolutionReason = "no_profile"
	ReasonUnresolved ResolutionReason = "unresolved"
)

// Resolution is the outcome of a role lookup. Err is set only for
// ReasonUnresolved; the role is then the non-admin default.
type Resolution struct {
	UserID     string
	Role       domainauth.Role
	Reason     ResolutionReason
	Err        error
	ResolvedAt time.Time
}

// IsAdmin reports whether the resolution grants administrative access.
func (r Resolution) IsAdmin() bool { return r.Role == domainauth.RoleAdmin }

// AuthorizationResolverOptions groups dependencies for AuthorizationResolver.
type AuthorizationResolverOptions struct {
	Profiles ports.ProfileStore
	Roles    ports.RoleMapper
	Config   AuthorizationConfig
}

// AuthorizationConfig tunes the resolver.
type AuthorizationConfig struct {
	// TTL is how long a resolution is reused for the same identity. Zero disables reuse.
	TTL     time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics Metrics
	Clock   func() time.Time
}

// AuthorizationResolver derives the admin flag for an identity from its profile.
// Lookup failures always resolve to the non-admin default.
type AuthorizationResolver struct {
	profiles ports.ProfileStore
	roles    ports.RoleMapper
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  Metrics
	clock    func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	memo *Resolution
}

// NewAuthorizationResolver constructs an AuthorizationResolver.
func NewAuthorizationResolver(opts AuthorizationResolverOptions) *AuthorizationResolver {
	if opts.Profiles == nil {
		panic("AuthorizationResolver requires a ProfileStore")
	}
	r := &AuthorizationResolver{
		profiles: opts.Profiles,
		roles:    opts.Roles,
		ttl:      opts.Config.TTL,
		timeout:  opts.Config.Timeout,
		logger:   opts.Config.Logger,
		metrics:  metricsOrNoop(opts.Config.Metrics),
		clock:    opts.Config.Clock,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "authorization_resolver")
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	return r
}

// Cached returns the memoized resolution for userID if it is still fresh.
func (r *AuthorizationResolver) Cached(userID string) (Resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memo == nil || r.memo.UserID != userID || r.ttl <= 0 {
		return Resolution{}, false
	}
	if r.clock().Sub(r.memo.ResolvedAt) >= r.ttl {
		return Resolution{}, false
	}
	return *r.memo, true
}

// Forget drops any memoized resolution.
func (r *AuthorizationResolver) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = nil
}

// Resolve looks up the role for ident. Concurrent calls for the same identity
// share one remote lookup.
func (r *AuthorizationResolver) Resolve(ctx context.Context, ident domainauth.Identity) Resolution {
	if ident.ID == "" {
		return Resolution{Role: domainauth.RoleGuest, Reason: ReasonUnresolved, ResolvedAt: r.clock()}
	}

	ch := r.group.DoChan(ident.ID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.lookup(lookupCtx, ident), nil
	})

	select {
	case res := <-ch:
		resolution, _ := res.Val.(Resolution)
		return resolution
	case <-ctx.Done():
		return r.unresolved(ctx, ident, ctx.Err())
	}
}

func (r *AuthorizationResolver) lookup(ctx context.Context, ident domainauth.Identity) Resolution {
	profile, err := r.profiles.GetByID(ctx, ident.ID)
	if err != nil && !apperrors.IsNotFound(err) {
		return r.unresolved(ctx, ident, err)
	}
	if apperrors.IsNotFound(err) {
		profile = nil
	}

	res := Resolution{
		UserID:     ident.ID,
		Role:       r.mapRole(profile),
		ResolvedAt: r.clock(),
	}
	switch {
	case profile == nil:
		res.Reason = ReasonNoProfile
	case res.IsAdmin():
		res.Reason = ReasonAdmin
	default:
		res.Reason = ReasonNotAdmin
	}

	r.logger.DebugContext(ctx, "role resolved", "user_id", ident.ID, "reason", res.Reason)
	r.metrics.RoleResolution(string(res.Reason))
	r.remember(res)
	return res
}

func (r *AuthorizationResolver) mapRole(profile *model.Profile) domainauth.Role {
	if r.roles != nil {
		return r.roles.Map(profile)
	}
	if profile != nil && profile.IsAdmin {
		return domainauth.RoleAdmin
	}
	return domainauth.RoleUser
}

func (r *AuthorizationResolver) unresolved(ctx context.Context, ident domainauth.Identity, err error) Resolution {
	r.logger.WarnContext(ctx, "role lookup failed; treating as non-admin",
		"user_id", ident.ID,
		"reason", ReasonUnresolved,
		"error", err,
	)
	r.metrics.RoleResolution(string(ReasonUnresolved))
	return Resolution{
		UserID:     ident.ID,
		Role:       domainauth.RoleUser,
		Reason:     ReasonUnresolved,
		Err:        apperrors.Normalize(err),
		ResolvedAt: r.clock(),
	}
}

func (r *AuthorizationResolver) remember(res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = &res
}
