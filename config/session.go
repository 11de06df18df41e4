package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	// RefreshMargin is how long before token expiry a refresh is attempted.
	RefreshMargin time.Duration `env:"SESSION_REFRESH_MARGIN" envDefault:"1m"`

	// RoleTTL bounds how long a resolved admin flag is reused for the same identity.
	RoleTTL           time.Duration `env:"ROLE_TTL"            envDefault:"5m"`
	RoleLookupTimeout time.Duration `env:"ROLE_LOOKUP_TIMEOUT" envDefault:"10s"`

	// Password reset throttle, per email address.
	ResetInterval time.Duration `env:"PASSWORD_RESET_INTERVAL" envDefault:"1m"`
	ResetBurst    int           `env:"PASSWORD_RESET_BURST"    envDefault:"1"`

	// NoticeTTL is how long success notices stay visible.
	NoticeTTL time.Duration `env:"NOTICE_TTL" envDefault:"3s"`

	// StateDir holds the persisted session file when Redis is not configured.
	// Defaults to <user config dir>/accountdesk.
	StateDir string `env:"SESSION_STATE_DIR"`
}

// Sanitize restores defaults for non-positive values.
func (c *SessionConfig) Sanitize() {
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = time.Minute
	}
	if c.RoleTTL < 0 {
		c.RoleTTL = 0
	}
	if c.RoleLookupTimeout <= 0 {
		c.RoleLookupTimeout = 10 * time.Second
	}
	if c.ResetInterval <= 0 {
		c.ResetInterval = time.Minute
	}
	if c.ResetBurst <= 0 {
		c.ResetBurst = 1
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = 3 * time.Second
	}
	c.StateDir = strings.TrimSpace(c.StateDir)
	if c.StateDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.StateDir = filepath.Join(dir, "accountdesk")
		} else {
			c.StateDir = filepath.Join(os.TempDir(), "accountdesk")
		}
	}
}

// ProfileConfig contains profile editing limits.
type ProfileConfig struct {
	// PhoneRegion is assumed for phone numbers without a country prefix.
	PhoneRegion    string `env:"PHONE_REGION"     envDefault:"US"`
	MaxAvatarBytes int    `env:"MAX_AVATAR_BYTES" envDefault:"2097152"`
}

// Sanitize normalises the region and clamps the avatar size.
func (c *ProfileConfig) Sanitize() {
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))
	if c.PhoneRegion == "" {
		c.PhoneRegion = "US"
	}
	if c.MaxAvatarBytes <= 0 {
		c.MaxAvatarBytes = 2 << 20
	}
}
