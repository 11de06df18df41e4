// Package hostedauth talks to a hosted authentication service over its REST
// API (password grant, refresh, sign-up, recovery and user update).
package hostedauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/accountdesk/accountdesk/internal/adapters/sessionhub"
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

const unreachableMessage = "Unable to reach the sign-in service. Check your connection and try again."

// Config holds the hosted service settings.
type Config struct {
	// BaseURL is the project URL; the auth API lives under /auth/v1.
	BaseURL string
	// APIKey is the public (anon) key sent with every request.
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Persister  ports.SessionPersister
	// RefreshMargin is how long before expiry tokens are refreshed.
	RefreshMargin time.Duration
	Logger        *slog.Logger
}

// Provider implements ports.IdentityProvider against the hosted service.
type Provider struct {
	authURL *url.URL
	apiKey  string
	client  *http.Client
	hub     *sessionhub.Hub
	logger  *slog.Logger
	clock   func() time.Time
}

// NewProvider validates cfg and creates a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("hosted auth: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("hosted auth: API key is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("hosted auth: invalid base URL %q", cfg.BaseURL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		authURL: base.JoinPath("auth", "v1"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger.With("component", "hosted_auth"),
		clock:   time.Now,
	}
	p.hub = sessionhub.New(sessionhub.Options{
		Persister: cfg.Persister,
		Refresh:   p.refresh,
		Margin:    cfg.RefreshMargin,
		Logger:    logger,
	})
	return p, nil
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
	var resp tokenResponse
	err := p.do(ctx, request{
		method: http.MethodPost,
		path:   "token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess, err := p.sessionFrom(resp)
	if err != nil {
		return domainauth.Session{}, err
	}
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignUp registers the account. When the service requires email confirmation
// the returned session carries the user id but no tokens.
func (p *Provider) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	var resp signUpResponse
	err := p.do(ctx, request{
		method: http.MethodPost,
		path:   "signup",
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return domainauth.Session{}, err
	}
	if resp.AccessToken == "" {
		u := resp.user()
		if u.ID == "" {
			return domainauth.Session{}, apperrors.Internal(apperrors.GenericMessage)
		}
		return domainauth.Session{UserID: u.ID, Email: u.Email}, nil
	}
	sess, err := p.sessionFrom(resp.tokenResponse)
	if err != nil {
		return domainauth.Session{}, err
	}
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session remotely and always forgets it locally.
func (p *Provider) SignOut(ctx context.Context) error {
	cur := p.hub.Current()
	var err error
	if cur != nil {
		err = p.do(ctx, request{method: http.MethodPost, path: "logout", bearer: cur.AccessToken}, nil)
	}
	p.hub.Clear(ctx)
	if apperrors.IsUnauthenticated(err) {
		// already revoked remotely
		return nil
	}
	return err
}

func (p *Provider) SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return p.do(ctx, request{
		method: http.MethodPost,
		path:   "recover",
		query:  q,
		body:   map[string]string{"email": email},
	}, nil)
}

func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	cur := p.hub.Current()
	if cur == nil {
		return apperrors.Unauthenticated("Sign in to change your password.")
	}
	var u userPayload
	err := p.do(ctx, request{
		method: http.MethodPut,
		path:   "user",
		bearer: cur.AccessToken,
		body:   map[string]string{"password": newPassword},
	}, &u)
	if err != nil {
		return err
	}
	p.hub.Publish(ctx, domainauth.EventUserUpdated, *cur)
	return nil
}

func (p *Provider) refresh(ctx context.Context, sess domainauth.Session) (domainauth.Session, error) {
	var resp tokenResponse
	err := p.do(ctx, request{
		method: http.MethodPost,
		path:   "token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": sess.RefreshToken},
	}, &resp)
	if err != nil {
		return domainauth.Session{}, err
	}
	return p.sessionFrom(resp)
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

// signUpResponse is either a token response or, when confirmation is
// required, a bare user object.
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (r signUpResponse) user() userPayload {
	if r.User.ID != "" {
		return r.User
	}
	return userPayload{ID: r.ID, Email: r.Email}
}

// accessClaims are the access-token claims used when the response omits the user.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (p *Provider) sessionFrom(resp tokenResponse) (domainauth.Session, error) {
	if resp.AccessToken == "" {
		return domainauth.Session{}, apperrors.Internal(apperrors.GenericMessage)
	}
	now := p.clock()
	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}
	if resp.ExpiresAt > 0 {
		tok.Expiry = time.Unix(resp.ExpiresAt, 0)
	}

	userID, email := resp.User.ID, resp.User.Email
	if userID == "" || email == "" || tok.Expiry.IsZero() && tok.ExpiresIn == 0 {
		claims, err := parseClaims(resp.AccessToken)
		if err != nil {
			p.logger.Warn("access token claims unreadable", "error", err)
		} else {
			if userID == "" {
				userID = claims.Subject
			}
			if email == "" {
				email = claims.Email
			}
			if tok.Expiry.IsZero() && tok.ExpiresIn == 0 && claims.ExpiresAt != nil {
				tok.Expiry = claims.ExpiresAt.Time
			}
		}
	}
	if userID == "" {
		return domainauth.Session{}, apperrors.Internal(apperrors.GenericMessage)
	}
	return sessionhub.FromToken(tok, userID, strings.ToLower(email), now), nil
}

// parseClaims reads the access token payload. The signature is checked by
// the service on every call; here the claims only describe the session.
func parseClaims(raw string) (*accessClaims, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return &claims, nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	bearer string
}

func (p *Provider) do(ctx context.Context, r request, out any) error {
	u := p.authURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	bearer := r.bearer
	if bearer == "" {
		bearer = p.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.Normalize(ctxErr)
		}
		return apperrors.Network(err, unreachableMessage)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Network(err, unreachableMessage)
	}
	if resp.StatusCode >= 300 {
		return classify(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
	}
	return nil
}
