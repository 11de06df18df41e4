package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"accountdesk"`
	Password string `env:"PASSWORD"                envDefault:"accountdesk"`
	Name     string `env:"NAME"                    envDefault:"accountdesk"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders the pgx connection URL. Credentials are escaped.
func (c DBConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// RedisConfig contains Redis configuration. Redis is optional: without a URI
// (and without sentinel or cluster nodes) sessions persist to a local file.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// KeyPrefix namespaces persisted sessions.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"accountdesk:session:"`
}

// Sanitize trims the URI.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.KeyPrefix == "" {
		c.KeyPrefix = "accountdesk:session:"
	}
}

// Enabled reports whether any Redis topology is configured.
func (c *RedisConfig) Enabled() bool {
	return c.URI != "" || (c.UseSentinel && len(c.SentinelNodes) > 0) || (c.UseCluster && len(c.ClusterNodes) > 0)
}
