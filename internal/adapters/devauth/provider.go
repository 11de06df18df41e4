package devauth

// Package devauth provides a simple, config-driven IdentityProvider for local development.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountdesk/accountdesk/internal/adapters/sessionhub"
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Account seeds a dev login. UserID is generated when empty.
type Account struct {
	UserID   string
	Email    string
	Password string
}

// Config controls the dev auth provider behavior.
type Config struct {
	Accounts        []Account
	SessionDuration time.Duration // default 8h when zero
	// AutoConfirm signs new accounts in immediately instead of requiring
	// email confirmation.
	AutoConfirm bool
	// MinPasswordLength rejects shorter passwords on sign-up. Default 6.
	MinPasswordLength int
	Persister         ports.SessionPersister
	Logger            *slog.Logger
}

type account struct {
	userID    string
	email     string
	hash      []byte
	confirmed bool
}

// Provider implements ports.IdentityProvider for local development.
// Accounts live in memory with bcrypt-hashed passwords; tokens are random
// and only meaningful to this process.
type Provider struct {
	hub             *sessionhub.Hub
	sessionDuration time.Duration
	autoConfirm     bool
	minPassword     int
	logger          *slog.Logger

	mu       sync.Mutex
	accounts map[string]*account // by lowercase email
	refresh  map[string]string   // refresh token -> email
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	minPw := cfg.MinPasswordLength
	if minPw <= 0 {
		minPw = 6
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		sessionDuration: dur,
		autoConfirm:     cfg.AutoConfirm,
		minPassword:     minPw,
		logger:          logger.With("component", "dev_auth"),
		accounts:        make(map[string]*account),
		refresh:         make(map[string]string),
	}
	for _, a := range cfg.Accounts {
		if a.Email == "" || a.Password == "" {
			return nil, errors.New("dev auth: accounts need an email and a password")
		}
		acct, err := newAccount(a.UserID, a.Email, a.Password)
		if err != nil {
			return nil, err
		}
		acct.confirmed = true
		p.accounts[acct.email] = acct
	}
	p.hub = sessionhub.New(sessionhub.Options{
		Persister: cfg.Persister,
		Refresh:   p.refreshSession,
		Logger:    logger,
	})
	return p, nil
}

func newAccount(userID, email, password string) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("dev auth: hash password: %w", err)
	}
	if userID == "" {
		userID = uuid.NewString()
	}
	return &account{userID: userID, email: strings.ToLower(strings.TrimSpace(email)), hash: hash}, nil
}

// Close stops background refresh.
func (p *Provider) Close() { p.hub.Close() }

func (p *Provider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	return p.hub.Restore(ctx)
}

func (p *Provider) OnSessionChange(fn func(domainauth.Event)) func() {
	return p.hub.Subscribe(fn)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (domainauth.Session, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	p.mu.Lock()
	acct, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonUnknownAccount, "No account found with this email address.")
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonInvalidCredentials, "Invalid login credentials")
	}
	if !acct.confirmed {
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonUnverified, "Please verify your email before signing in.")
	}
	sess := p.issue(acct)
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	if len(password) < p.minPassword {
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonWeakPassword,
			fmt.Sprintf("Password should be at least %d characters.", p.minPassword))
	}
	acct, err := newAccount("", email, password)
	if err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
	}
	acct.confirmed = p.autoConfirm

	p.mu.Lock()
	if _, exists := p.accounts[acct.email]; exists {
		p.mu.Unlock()
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonAccountExists, "An account with this email already exists.")
	}
	p.accounts[acct.email] = acct
	p.mu.Unlock()

	if !acct.confirmed {
		p.logger.InfoContext(ctx, "dev account created; confirm with ConfirmEmail", "email", acct.email, "user_id", acct.userID)
		return domainauth.Session{UserID: acct.userID, Email: acct.email}, nil
	}
	sess := p.issue(acct)
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

// ConfirmEmail marks a pending account as verified.
func (p *Provider) ConfirmEmail(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return false
	}
	acct.confirmed = true
	return true
}

func (p *Provider) SignOut(ctx context.Context) error {
	if cur := p.hub.Current(); cur != nil {
		p.mu.Lock()
		delete(p.refresh, cur.RefreshToken)
		p.mu.Unlock()
	}
	p.hub.Clear(ctx)
	return nil
}

// SendPasswordResetEmail logs the recovery link instead of mailing it.
// Unknown addresses succeed silently.
func (p *Provider) SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error {
	key := strings.ToLower(strings.TrimSpace(email))
	p.mu.Lock()
	_, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	link := redirectTo
	if link == "" {
		link = "/"
	}
	u, err := url.Parse(link)
	if err != nil {
		return apperrors.ValidationField("redirect_to", "Invalid redirect URL")
	}
	q := u.Query()
	q.Set("type", "recovery")
	q.Set("token", uuid.NewString())
	u.RawQuery = q.Encode()
	p.logger.InfoContext(ctx, "password reset requested", "email", key, "link", u.String())
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	cur := p.hub.Current()
	if cur == nil {
		return apperrors.Unauthenticated("Sign in to change your password.")
	}
	if len(newPassword) < p.minPassword {
		return apperrors.Credential(apperrors.ReasonWeakPassword,
			fmt.Sprintf("Password should be at least %d characters.", p.minPassword))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
	}
	p.mu.Lock()
	acct, ok := p.accounts[cur.Email]
	if ok {
		acct.hash = hash
	}
	p.mu.Unlock()
	if !ok {
		return apperrors.Unauthenticated("Your session has expired. Please sign in again.")
	}
	p.hub.Publish(ctx, domainauth.EventUserUpdated, *cur)
	return nil
}

func (p *Provider) refreshSession(_ context.Context, sess domainauth.Session) (domainauth.Session, error) {
	p.mu.Lock()
	email, ok := p.refresh[sess.RefreshToken]
	var acct *account
	if ok {
		delete(p.refresh, sess.RefreshToken)
		acct = p.accounts[email]
	}
	p.mu.Unlock()
	if acct == nil {
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonInvalidCredentials, "Invalid Refresh Token")
	}
	return p.issue(acct), nil
}

func (p *Provider) issue(acct *account) domainauth.Session {
	now := time.Now().UTC()
	sess := domainauth.Session{
		UserID:       acct.userID,
		Email:        acct.email,
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		TokenType:    "Bearer",
		IssuedAt:     now,
		ExpiresAt:    now.Add(p.sessionDuration),
	}
	p.mu.Lock()
	p.refresh[sess.RefreshToken] = acct.email
	p.mu.Unlock()
	return sess
}
