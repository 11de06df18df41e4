package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/accountdesk/accountdesk/config"
)

// logLevel is shared by every logger InitLogger builds so the level can be
// changed after startup.
var logLevel = new(slog.LevelVar)

// InitLogger initializes the structured logger. Development mode logs text to
// stderr; otherwise JSON goes to stdout.
func InitLogger(isDev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if isDev {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel applies one of debug, info, warn or error. Unknown values leave
// the level unchanged.
func SetLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return
	}
	logLevel.Set(l)
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
