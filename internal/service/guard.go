package service

import (
	"golang.org/x/sync/semaphore"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// inflight admits one call at a time and rejects the rest with a busy error.
type inflight struct {
	sem     *semaphore.Weighted
	message string
}

func newInflight(message string) *inflight {
	return &inflight{sem: semaphore.NewWeighted(1), message: message}
}

// acquire returns a release func, or a busy AppError if a call is running.
func (g *inflight) acquire() (func(), error) {
	if !g.sem.TryAcquire(1) {
		return nil, apperrors.Busy(g.message)
	}
	return func() { g.sem.Release(1) }, nil
}
