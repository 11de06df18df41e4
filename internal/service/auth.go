package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	obserrors "github.com/accountdesk/accountdesk/internal/observability/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.IdentityProvider
	Sessions *SessionStore
	Deps     AuthServiceDeps
}

// AuthServiceDeps holds the collaborators and policy of AuthService.
type AuthServiceDeps struct {
	Profiles ports.ProfileStore
	Notices  *NoticeBoard
	Policy   AuthPolicy
	Logger   *slog.Logger
	Metrics  Metrics
}

// AuthPolicy tunes credential handling.
type AuthPolicy struct {
	MinPasswordLength int
	// RevealUnknownAccount shows the provider's own message for unknown
	// accounts and wrong passwords instead of one generic message.
	RevealUnknownAccount bool
	ResetRedirectURL     string
	// ResetInterval and ResetBurst throttle password reset requests per email.
	ResetInterval time.Duration
	ResetBurst    int
}

const (
	invalidCredentialsMessage = "Invalid email or password"
	sessionChangedMessage     = "Your session changed while signing in. Please try again."
)

// AuthService runs the user-initiated authentication actions and reports
// their outcomes through the session store and notice board.
type AuthService struct {
	provider ports.IdentityProvider
	sessions *SessionStore
	profiles ports.ProfileStore
	notices  *NoticeBoard
	policy   AuthPolicy
	logger   *slog.Logger
	metrics  Metrics

	// sign-in and sign-up share one guard
	credentialGuard *inflight
	signOutGuard    *inflight
	resetGuard      *inflight
	passwordGuard   *inflight

	limiterMu     sync.Mutex
	resetLimiters map[string]*resetEntry
}

// maxResetLimiters caps the per-email limiter map.
const maxResetLimiters = 1024

type resetEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Provider == nil || opts.Sessions == nil {
		panic("AuthService requires a provider and a session store")
	}
	logger := opts.Deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Deps.Policy
	if policy.MinPasswordLength <= 0 {
		policy.MinPasswordLength = model.DefaultMinPasswordLength
	}
	if policy.ResetInterval <= 0 {
		policy.ResetInterval = time.Minute
	}
	if policy.ResetBurst <= 0 {
		policy.ResetBurst = 1
	}
	return &AuthService{
		provider:        opts.Provider,
		sessions:        opts.Sessions,
		profiles:        opts.Deps.Profiles,
		notices:         opts.Deps.Notices,
		policy:          policy,
		logger:          logger.With("component", "auth_service"),
		metrics:         metricsOrNoop(opts.Deps.Metrics),
		credentialGuard: newInflight("A sign-in is already in progress"),
		signOutGuard:    newInflight("Sign-out is already in progress"),
		resetGuard:      newInflight("A reset request is already in progress"),
		passwordGuard:   newInflight("A password change is already in progress"),
		resetLimiters:   make(map[string]*resetEntry),
	}
}

// SignIn authenticates with email and password. On success the returned state
// is authenticated with the role already resolved. On failure the session state
// is left as it was.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (st domainauth.State, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "sign_in", start, err) }()

	release, err := s.credentialGuard.acquire()
	if err != nil {
		return s.sessions.Current(), err
	}
	defer release()

	email = model.NormalizeEmail(email)
	if vErr := model.ValidateCredentials(email, password); vErr != nil {
		return s.sessions.Current(), validationError(vErr)
	}

	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.sessions.Current(), s.presentCredentialError(apperrors.Normalize(err))
	}
	if !sess.Active() {
		return s.sessions.Current(), apperrors.Internal(apperrors.GenericMessage)
	}

	st, err = s.sessions.Establish(ctx, sess.Identity())
	if err != nil {
		return st, apperrors.Normalize(err)
	}
	if !st.Authenticated() || st.UserID() != sess.UserID {
		return st, apperrors.Conflict(sessionChangedMessage)
	}
	s.logger.InfoContext(ctx, "signed in", "user_id", sess.UserID, "role", st.Role())
	return st, nil
}

// SignUpResult describes a completed registration.
type SignUpResult struct {
	UserID string
	State  domainauth.State
	// ConfirmationRequired is set when the provider wants the email confirmed
	// before the account can sign in.
	ConfirmationRequired bool
	Profile              *model.Profile
}

// SignUp registers an account and writes its profile row. If the account is
// created but the profile write fails, the result is still returned together
// with the profile error; the account stays valid for a later sign-in.
func (s *AuthService) SignUp(ctx context.Context, in model.RegistrationInput) (res *SignUpResult, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "sign_up", start, err) }()

	release, err := s.credentialGuard.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	in.Normalize()
	if vErr := in.Validate(s.policy.MinPasswordLength); vErr != nil {
		return nil, validationError(vErr)
	}

	sess, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, s.presentCredentialError(apperrors.Normalize(err))
	}

	res = &SignUpResult{UserID: sess.UserID, ConfirmationRequired: !sess.Active()}
	profileErr := s.createProfile(ctx, sess.UserID, in, res)

	if sess.Active() {
		st, estErr := s.sessions.Establish(ctx, sess.Identity())
		if estErr != nil {
			s.logger.WarnContext(ctx, "sign-up session not applied", "user_id", sess.UserID, "error", estErr)
		}
		res.State = st
	} else {
		res.State = s.sessions.Current()
	}

	s.logger.InfoContext(ctx, "account created",
		"user_id", sess.UserID,
		"confirmation_required", res.ConfirmationRequired,
		"profile_created", profileErr == nil,
	)
	if profileErr != nil {
		return res, profileErr
	}
	if res.ConfirmationRequired {
		s.notices.Success("Account created! Check your email to confirm your address.")
	} else {
		s.notices.Success("Account created successfully!")
	}
	return res, nil
}

func (s *AuthService) createProfile(ctx context.Context, userID string, in model.RegistrationInput, res *SignUpResult) error {
	if s.profiles == nil || userID == "" {
		return nil
	}
	profile, err := s.profiles.Create(ctx, model.CreateProfileRequest{
		ID:       userID,
		Email:    in.Email,
		FullName: in.FullName,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "profile creation failed after sign-up", "user_id", userID, "error", err)
		norm := apperrors.Normalize(err)
		return &apperrors.AppError{
			Code:    apperrors.GetCode(norm),
			Message: "Your account was created, but your profile could not be saved: " + apperrors.UserMessage(norm),
			Cause:   err,
		}
	}
	res.Profile = profile
	return nil
}

// SignOut ends the session. The local state is always cleared, even when the
// provider call fails.
func (s *AuthService) SignOut(ctx context.Context) (st domainauth.State, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "sign_out", start, err) }()

	release, err := s.signOutGuard.acquire()
	if err != nil {
		return s.sessions.Current(), err
	}
	defer release()

	userID := s.sessions.Current().UserID()
	if provErr := s.provider.SignOut(ctx); provErr != nil {
		s.logger.WarnContext(ctx, "provider sign-out failed; clearing local session", "user_id", userID, "error", provErr)
	}
	st = s.sessions.Clear("sign_out")
	s.notices.Success("You have been signed out.")
	return st, nil
}

// RequestPasswordReset asks the provider to email a reset link.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "password_reset", start, err) }()

	release, err := s.resetGuard.acquire()
	if err != nil {
		return err
	}
	defer release()

	email = model.NormalizeEmail(email)
	if vErr := model.ValidateEmail(email); vErr != nil {
		return validationError(vErr)
	}
	if !s.resetLimiter(email, time.Now()).Allow() {
		return apperrors.RateLimited("Please wait before requesting another reset email.")
	}

	if err = s.provider.SendPasswordResetEmail(ctx, email, s.policy.ResetRedirectURL); err != nil {
		err = apperrors.Normalize(err)
		if !(apperrors.IsCredential(err) && !s.policy.RevealUnknownAccount) {
			return err
		}
		s.logger.DebugContext(ctx, "reset requested for unknown account", "error", err)
		err = nil
	}
	s.notices.Success("Password reset email sent! Check your inbox.")
	return nil
}

// ChangePassword sets a new password for the signed-in user.
func (s *AuthService) ChangePassword(ctx context.Context, newPassword, confirm string) (err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "change_password", start, err) }()

	if !s.sessions.Current().Authenticated() {
		return apperrors.Unauthenticated("Sign in to change your password.")
	}
	release, err := s.passwordGuard.acquire()
	if err != nil {
		return err
	}
	defer release()

	if vErr := model.ValidatePassword(newPassword, confirm, s.policy.MinPasswordLength); vErr != nil {
		return validationError(vErr)
	}
	if err = s.provider.UpdatePassword(ctx, newPassword); err != nil {
		return apperrors.Normalize(err)
	}
	s.notices.Success("Password updated successfully!")
	return nil
}

func (s *AuthService) presentCredentialError(err error) error {
	if !apperrors.IsCredential(err) || s.policy.RevealUnknownAccount {
		return err
	}
	switch apperrors.GetField(err) {
	case apperrors.ReasonInvalidCredentials, apperrors.ReasonUnknownAccount:
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeCredential,
			Message: invalidCredentialsMessage,
			Field:   apperrors.ReasonInvalidCredentials,
			Cause:   err,
		}
	case apperrors.ReasonAccountExists:
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeCredential,
			Message: "Could not create an account with these details.",
			Field:   apperrors.ReasonAccountExists,
			Cause:   err,
		}
	default:
		return err
	}
}

func (s *AuthService) resetLimiter(email string, now time.Time) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	if e, ok := s.resetLimiters[email]; ok {
		e.seen = now
		return e.limiter
	}
	if len(s.resetLimiters) >= maxResetLimiters {
		s.pruneResetLimitersLocked(now)
	}
	e := &resetEntry{
		limiter: rate.NewLimiter(rate.Every(s.policy.ResetInterval), s.policy.ResetBurst),
		seen:    now,
	}
	s.resetLimiters[email] = e
	return e.limiter
}

// pruneResetLimitersLocked drops limiters that have refilled completely, since
// a fresh limiter behaves the same. If none has, the least recently used goes.
func (s *AuthService) pruneResetLimitersLocked(now time.Time) {
	idle := s.policy.ResetInterval * time.Duration(s.policy.ResetBurst)
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range s.resetLimiters {
		if now.Sub(e.seen) >= idle {
			delete(s.resetLimiters, k)
			continue
		}
		if oldestKey == "" || e.seen.Before(oldest) {
			oldestKey, oldest = k, e.seen
		}
	}
	if len(s.resetLimiters) >= maxResetLimiters {
		delete(s.resetLimiters, oldestKey)
	}
}

func (s *AuthService) finish(ctx context.Context, action string, start time.Time, err error) {
	observe(s.metrics, action, start, err)
	if err == nil {
		return
	}
	s.notices.Error(err)
	if apperrors.IsInternal(err) || apperrors.IsNetwork(err) {
		s.logger.ErrorContext(ctx, action+" failed", "error", err, "error_type", obserrors.Classify(err))
		return
	}
	s.logger.DebugContext(ctx, action+" rejected", "code", apperrors.GetCode(err), "error", err)
}
