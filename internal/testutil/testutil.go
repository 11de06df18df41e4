// Package testutil holds helpers shared by the package tests: infrastructure
// setup that skips when Postgres or Redis is absent, profile builders and
// small value helpers.
package testutil

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// TestTime returns the fixed instant the builders stamp profiles with.
func TestTime() time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

// ConcurrentTestRunner starts operations together and collects their errors.
type ConcurrentTestRunner struct {
	t testing.TB
}

// NewConcurrentTestRunner creates a runner reporting to t.
func NewConcurrentTestRunner(t testing.TB) *ConcurrentTestRunner {
	return &ConcurrentTestRunner{t: t}
}

// RunConcurrent runs every fn in its own goroutine, released at the same
// moment, and returns their errors in argument order.
func (r *ConcurrentTestRunner) RunConcurrent(funcs ...func() error) []error {
	r.t.Helper()
	errs := make([]error, len(funcs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

// AssertNoErrors fails the test on the first non-nil error.
func (r *ConcurrentTestRunner) AssertNoErrors(errs []error) {
	r.t.Helper()
	for i, err := range errs {
		if err != nil {
			r.t.Fatalf("concurrent operation %d failed: %v", i, err)
		}
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// skipOrFail skips t when infrastructure is missing, unless the run demands it.
func skipOrFail(t testing.TB, required bool, format string, args ...any) {
	t.Helper()
	if required || envBool("TEST_REQUIRE_INFRA") {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}
