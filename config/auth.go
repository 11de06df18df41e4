package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the identity provider.
type AuthMode string

const (
	// AuthModeHosted talks to a hosted auth REST API (GoTrue style).
	AuthModeHosted AuthMode = "hosted"
	// AuthModeOIDC uses an OpenID Connect provider with the password grant.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev uses in-memory accounts (for development only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "hosted", "oidc", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: hosted, oidc, dev)", v)
	}
}

// HostedAuthConfig configures the hosted auth service.
type HostedAuthConfig struct {
	URL     string `env:"URL"`
	AnonKey string `env:"ANON_KEY"`
	// ResetRedirectURL is where password reset links land.
	ResetRedirectURL string        `env:"RESET_REDIRECT_URL"`
	Timeout          time.Duration `env:"TIMEOUT"            envDefault:"15s"`
}

// OIDCConfig contains OpenID Connect configuration.
type OIDCConfig struct {
	ClientID      string `env:"CLIENT_ID"`
	ClientSecret  string `env:"CLIENT_SECRET"`
	Scope         string `env:"SCOPE"          envDefault:"openid email profile offline_access"`
	DiscoveryURL  string `env:"DISCOVERY_URL"`
	RevocationURL string `env:"REVOCATION_URL"`
}

// DevAccount is one seeded development account.
type DevAccount struct {
	UserID   string
	Email    string
	Password string
}

// DevAuthConfig seeds the in-memory provider used when AUTH_MODE=dev.
// Accounts are "id:email:password" entries separated by semicolons.
type DevAuthConfig struct {
	Accounts    []string `env:"ACCOUNTS"     envDefault:"dev-user:dev@example.com:devpassword" envSeparator:";"`
	AutoConfirm bool     `env:"AUTO_CONFIRM" envDefault:"true"`
}

// ParseAccounts splits the configured account entries.
func (c DevAuthConfig) ParseAccounts() ([]DevAccount, error) {
	out := make([]DevAccount, 0, len(c.Accounts))
	for _, raw := range c.Accounts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid dev account %q (want id:email:password)", raw)
		}
		out = append(out, DevAccount{UserID: parts[0], Email: parts[1], Password: parts[2]})
	}
	return out, nil
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"hosted"`

	Hosted  HostedAuthConfig `envPrefix:"HOSTED_"`
	OIDC    OIDCConfig       `envPrefix:"OIDC_"`
	DevAuth DevAuthConfig    `envPrefix:"DEV_AUTH_"`

	// RevealUnknownAccount passes the provider's credential messages through
	// instead of one generic "Invalid email or password".
	RevealUnknownAccount bool `env:"REVEAL_UNKNOWN_ACCOUNT" envDefault:"false"`

	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"6"`
}

// Sanitize trims URLs and restores defaults for out-of-range values.
func (c *AuthConfig) Sanitize() {
	c.Hosted.URL = strings.TrimRight(strings.TrimSpace(c.Hosted.URL), "/")
	c.Hosted.AnonKey = strings.TrimSpace(c.Hosted.AnonKey)
	c.Hosted.ResetRedirectURL = strings.TrimSpace(c.Hosted.ResetRedirectURL)
	if c.Hosted.Timeout <= 0 {
		c.Hosted.Timeout = 15 * time.Second
	}
	c.OIDC.DiscoveryURL = strings.TrimSpace(c.OIDC.DiscoveryURL)
	c.OIDC.RevocationURL = strings.TrimSpace(c.OIDC.RevocationURL)
	if strings.TrimSpace(c.OIDC.Scope) == "" {
		c.OIDC.Scope = "openid email profile offline_access"
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = 6
	}
}

// Validate checks that the selected mode has what it needs.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeHosted:
		if c.Hosted.URL == "" || c.Hosted.AnonKey == "" {
			return errors.New("AUTH_MODE=hosted requires HOSTED_URL and HOSTED_ANON_KEY")
		}
	case AuthModeOIDC:
		if c.OIDC.DiscoveryURL == "" || c.OIDC.ClientID == "" {
			return errors.New("AUTH_MODE=oidc requires OIDC_DISCOVERY_URL and OIDC_CLIENT_ID")
		}
	case AuthModeDev:
		if _, err := c.DevAuth.ParseAccounts(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
	return nil
}
