package config

import "strings"

const defaultObservabilityName = "accountdesk"

// MetricsSink selects where session and action metrics go.
type MetricsSink string

const (
	MetricsSinkNone       MetricsSink = "none"
	MetricsSinkStatsd     MetricsSink = "statsd"
	MetricsSinkPrometheus MetricsSink = "prometheus"
)

// ObservabilityConfig groups configuration that controls metrics and logging.
type ObservabilityConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Metrics  ObservabilityMetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics.
type ObservabilityMetricsConfig struct {
	Sink          MetricsSink `env:"METRICS_SINK"           envDefault:"prometheus"`
	StatsdAddress string      `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string      `env:"METRICS_PREFIX"         envDefault:"accountdesk"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.Sink = MetricsSink(strings.ToLower(strings.TrimSpace(string(c.Sink))))
	switch c.Sink {
	case MetricsSinkStatsd, MetricsSinkPrometheus, MetricsSinkNone:
	default:
		c.Sink = MetricsSinkNone
	}
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.Sink == MetricsSinkStatsd && c.StatsdAddress == "" {
		c.Sink = MetricsSinkNone
	}
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
}
