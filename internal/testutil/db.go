package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"testing"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/accountdesk/accountdesk/internal/migrate"
)

// TestDBConfig locates the Postgres instance used by the repository tests.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* with defaults for the docker-compose
// test profile on port 55432. CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "accountdesk"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "accountdesk"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "accountdesk"),
	}
}

// DSN renders the connection URL. A non-empty schema is put first on the search_path.
func (c TestDBConfig) DSN(schema string) string {
	q := url.Values{}
	q.Set("sslmode", getEnvOrDefault("DB_SSL_MODE", "disable"))
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// WithAutoDB runs fn against a migrated database with an empty user_profiles
// table. With TEST_DB_EPHEMERAL set, each call gets its own schema, dropped
// afterwards. The test is skipped when Postgres is unreachable, unless
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	cfg := DefaultTestDBConfig()
	db := openTestDB(t, cfg.DSN(""))

	if envBool("TEST_DB_EPHEMERAL") {
		db = ephemeralSchema(t, db, cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	truncateProfiles(t, db)
	t.Cleanup(func() { truncateProfiles(t, db) })

	fn(db)
}

func openTestDB(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		skipOrFail(t, envBool("TEST_REQUIRE_DB"), "test database not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		skipOrFail(t, envBool("TEST_REQUIRE_DB"), "test database not available: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	})
	return db
}

// ephemeralSchema creates a throwaway schema through admin and returns a
// handle whose search_path starts with it.
func ephemeralSchema(t testing.TB, admin *sql.DB, cfg TestDBConfig) *sql.DB {
	t.Helper()
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := admin.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})
	// registered after the drop, so it runs first
	return openTestDB(t, cfg.DSN(schema))
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return "t_" + hex.EncodeToString(b)
}

func truncateProfiles(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM user_profiles"); err != nil {
		t.Fatalf("clean user_profiles: %v", err)
	}
}
