package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/accountdesk/accountdesk/config"
	"github.com/accountdesk/accountdesk/internal/observability/metrics"
	"github.com/accountdesk/accountdesk/internal/observability/statsd"
	"github.com/accountdesk/accountdesk/internal/service"
)

// MetricsBundle is the metrics sink plus whatever it needs at shutdown.
type MetricsBundle struct {
	Metrics service.Metrics
	// Handler serves /metrics when the Prometheus sink is selected.
	Handler http.Handler
	closers []func() error
}

// Close releases sink resources.
func (b MetricsBundle) Close() error {
	for _, c := range b.closers {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// BuildMetrics creates the configured metrics sink. The "none" sink returns
// an empty bundle and the services fall back to no-op metrics.
func BuildMetrics(ctx context.Context, cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (MetricsBundle, error) {
	switch cfg.Sink {
	case config.MetricsSinkStatsd:
		client, err := statsd.Dial(ctx, statsd.Config{
			Address: cfg.StatsdAddress,
			Prefix:  cfg.Prefix,
			Logger:  logger,
		})
		if err != nil {
			return MetricsBundle{}, fmt.Errorf("statsd: %w", err)
		}
		logger.Info("statsd metrics enabled", "addr", cfg.StatsdAddress)
		return MetricsBundle{
			Metrics: metrics.NewStatsdRecorder(client, nil),
			closers: []func() error{client.Close},
		}, nil
	case config.MetricsSinkPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return MetricsBundle{
			Metrics: metrics.NewCollector(reg),
			Handler: metrics.Handler(reg),
		}, nil
	default:
		return MetricsBundle{}, nil
	}
}
