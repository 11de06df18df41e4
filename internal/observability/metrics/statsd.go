package metrics

import (
	"time"

	"github.com/accountdesk/accountdesk/internal/observability/statsd"
)

// StatsdRecorder forwards telemetry to a StatsD sink.
type StatsdRecorder struct {
	sink statsd.Sink
	tags map[string]string
}

// NewStatsdRecorder wraps sink. tags are added to every metric.
func NewStatsdRecorder(sink statsd.Sink, tags map[string]string) *StatsdRecorder {
	return &StatsdRecorder{sink: sink, tags: tags}
}

func (r *StatsdRecorder) SessionTransition(from, to string) {
	r.count("session.transition", map[string]string{"from": from, "to": to})
}

func (r *StatsdRecorder) ActionResult(action, outcome string, elapsed time.Duration) {
	tags := map[string]string{"action": action, "outcome": outcome}
	r.count("action.result", tags)
	if r.sink != nil {
		r.sink.Timing("action.duration", elapsed, r.merge(map[string]string{"action": action}))
	}
}

func (r *StatsdRecorder) RoleResolution(outcome string) {
	r.count("role.resolution", map[string]string{"outcome": outcome})
}

func (r *StatsdRecorder) count(name string, tags map[string]string) {
	if r == nil || r.sink == nil {
		return
	}
	r.sink.Count(name, 1, r.merge(tags))
}

func (r *StatsdRecorder) merge(tags map[string]string) map[string]string {
	if len(r.tags) == 0 {
		return tags
	}
	out := make(map[string]string, len(r.tags)+len(tags))
	for k, v := range r.tags {
		out[k] = v
	}
	for k, v := range tags {
		out[k] = v
	}
	return out
}
