package httpx

import (
	"context"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
)

// Unexported context key types avoid collisions across packages.
type (
	stateKey     struct{}
	requestIDKey struct{}
)

// SetStateInContext returns a child context carrying the session state the
// request was admitted with.
func SetStateInContext(ctx context.Context, st domainauth.State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// StateFromContext returns the admitted session state and whether one is present.
func StateFromContext(ctx context.Context) (domainauth.State, bool) {
	st, ok := ctx.Value(stateKey{}).(domainauth.State)
	return st, ok
}

// SetRequestIDInContext stores the request id.
func SetRequestIDInContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
