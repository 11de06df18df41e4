package service

import (
	"time"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// Metrics receives session and action telemetry.
// Implementations live in internal/observability/metrics.
type Metrics interface {
	SessionTransition(from, to string)
	ActionResult(action, outcome string, elapsed time.Duration)
	RoleResolution(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) SessionTransition(string, string) {}
func (noopMetrics) ActionResult(string, string, time.Duration) {}
func (noopMetrics) RoleResolution(string) {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// outcome labels an action result by error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return string(apperrors.ErrCodeInternal)
}

func observe(m Metrics, action string, start time.Time, err error) {
	m.ActionResult(action, outcome(err), time.Since(start))
}
