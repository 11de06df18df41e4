package oidc

// Package oidc provides an IdentityProvider backed by a generic OpenID Connect
// issuer using the resource-owner password grant.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/accountdesk/accountdesk/internal/adapters/sessionhub"
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

const unreachableMessage = "Unable to reach the sign-in service. Check your connection and try again."

// Provider implements ports.IdentityProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	revokeURL  string
	httpClient *http.Client
	hub        *sessionhub.Hub
	logger     *slog.Logger

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	// RevocationURL, when set, receives the refresh token on sign-out (RFC 7009).
	RevocationURL string
	HTTPClient    *http.Client // Optional, defaults to a 30s client
	Persister     ports.SessionPersister
	RefreshMargin time.Duration
	Logger        *slog.Logger
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// NewProvider creates a new OIDC provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		revokeURL:  config.RevocationURL,
		httpClient: httpClient,
		logger:     logger.With("component", "oidc_auth"),
	}

	// single discovery fetch
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(p.clientContext(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	if p.revokeURL == "" {
		var extra struct {
			RevocationEndpoint string `json:"revocation_endpoint"`
		}
		if claimsErr := op.Claims(&extra); claimsErr == nil {
			p.revokeURL = extra.RevocationEndpoint
		}
	}

	scope := config.Scope
	if strings.TrimSpace(scope) == "" {
		scope = "openid email profile offline_access"
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       strings.Fields(scope),
		Endpoint:     op.Endpoint(),
	}

	p.hub = sessionhub.New(sessionhub.Options{
		Persister: config.Persister,
		Refresh:   p.refresh,
		Margin:    config.RefreshMargin,
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
	token, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return domainauth.Session{}, mapTokenError(ctx, err)
	}
	sess, err := p.sessionFromToken(ctx, token, domainauth.Session{})
	if err != nil {
		return domainauth.Session{}, err
	}
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignUp is not offered by generic OIDC issuers.
func (p *Provider) SignUp(context.Context, string, string) (domainauth.Session, error) {
	return domainauth.Session{}, apperrors.Unsupported("Account registration is handled by your identity provider.")
}

// SignOut revokes the refresh token when the issuer supports it and always
// forgets the session locally.
func (p *Provider) SignOut(ctx context.Context) error {
	cur := p.hub.Current()
	var err error
	if cur != nil && cur.RefreshToken != "" && p.revokeURL != "" {
		err = p.revoke(ctx, cur.RefreshToken)
	}
	p.hub.Clear(ctx)
	return err
}

func (p *Provider) SendPasswordResetEmail(context.Context, string, string) error {
	return apperrors.Unsupported("Password resets are handled by your identity provider.")
}

func (p *Provider) UpdatePassword(context.Context, string) error {
	return apperrors.Unsupported("Password changes are handled by your identity provider.")
}

func (p *Provider) refresh(ctx context.Context, sess domainauth.Session) (domainauth.Session, error) {
	src := p.config.TokenSource(p.clientContext(ctx), sessionhub.Token(sess))
	token, err := src.Token()
	if err != nil {
		return domainauth.Session{}, mapTokenError(ctx, err)
	}
	return p.sessionFromToken(ctx, token, sess)
}

func (p *Provider) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.config.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, apperrors.GenericMessage)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.config.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperrors.Network(err, unreachableMessage)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return apperrors.Network(fmt.Errorf("revoke token: status %d", resp.StatusCode), unreachableMessage)
	}
	// 4xx means the token is already unusable
	return nil
}

// sessionFromToken builds a session from a token response. prev supplies the
// identity when a refresh response carries no id_token.
func (p *Provider) sessionFromToken(ctx context.Context, tok *oauth2.Token, prev domainauth.Session) (domainauth.Session, error) {
	fields := idFields{userID: prev.UserID, email: prev.Email}
	if raw, err := getIDTokenFromToken(tok); err == nil {
		f, vErr := p.verifyIDToken(ctx, raw)
		if vErr != nil {
			return domainauth.Session{}, apperrors.Wrap(vErr, apperrors.ErrCodeUnauthenticated, "The sign-in response could not be verified.")
		}
		fields = f
	}
	if fields.userID == "" || fields.email == "" {
		if fillErr := p.fillFromUserInfo(ctx, tok, &fields); fillErr != nil {
			return domainauth.Session{}, apperrors.Network(fmt.Errorf("get user info: %w", fillErr), unreachableMessage)
		}
	}
	if fields.userID == "" {
		return domainauth.Session{}, apperrors.Internal(apperrors.GenericMessage)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = prev.RefreshToken
	}
	return sessionhub.FromToken(tok, fields.userID, strings.ToLower(fields.email), time.Now()), nil
}

func (p *Provider) verifyIDToken(ctx context.Context, raw string) (idFields, error) {
	idTok, err := p.verifier.Verify(p.clientContext(ctx), raw)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapIDTokenClaims(claims), nil
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Mail              string `json:"mail"`
	PreferredUsername string `json:"preferred_username"`
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var userInfo UserInfo
	if claimsErr := ui.Claims(&userInfo); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillFromUserInfoClaims(f, userInfo)
	return nil
}

type idFields struct {
	userID string
	email  string
}

// idTokenClaims covers standard OIDC claims plus the AD/ADFS "mail" shape.
type idTokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Mail  string `json:"mail"`
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{userID: c.Sub, email: firstNonEmpty(c.Email, c.Mail)}
}

// fillFromUserInfoClaims fills missing fields without overwriting present ones.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.userID == "" {
		f.userID = ui.Subject
	}
	if f.email == "" {
		f.email = firstNonEmpty(ui.Email, ui.Mail)
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// mapTokenError converts token endpoint failures to AppErrors.
func mapTokenError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.Normalize(ctxErr)
	}
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return apperrors.Network(err, unreachableMessage)
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited("Too many attempts. Please wait a moment and try again.")
	case status >= 500:
		return apperrors.Network(err, unreachableMessage)
	case re.ErrorCode == "invalid_grant":
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeCredential,
			Message: "Invalid login credentials",
			Cause:   err,
			Field:   apperrors.ReasonInvalidCredentials,
		}
	case re.ErrorCode == "unauthorized_client" || re.ErrorCode == "unsupported_grant_type":
		return apperrors.Wrap(err, apperrors.ErrCodeUnsupported, "Password sign-in is not enabled for this client.")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "Sign-in was rejected by the identity provider.")
	}
}
