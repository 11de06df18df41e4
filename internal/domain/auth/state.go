package auth

import (
	"errors"
	"fmt"
)

// Phase is the coarse lifecycle stage of the client session.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticated   Phase = "authenticated"
)

// ErrInvalidTransition is returned when a state change would break the session lifecycle.
var ErrInvalidTransition = errors.New("invalid session transition")

var transitions = map[Phase]map[Phase]struct{}{
	PhaseInitializing: {
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
	},
	PhaseUnauthenticated: {
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
	},
	PhaseAuthenticated: {
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
	},
}

// CanTransition reports whether the lifecycle allows moving from one phase to another.
// Nothing ever returns to PhaseInitializing.
func CanTransition(from, to Phase) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// State is the snapshot observers see.
//
// Identity is set exactly when Phase is PhaseAuthenticated. IsAdmin is only
// ever true for an authenticated state whose role has been resolved for
// that same identity.
type State struct {
	Phase        Phase     `json:"phase"`
	Identity     *Identity `json:"user,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	RoleResolved bool      `json:"role_resolved"`
	// Version increases by one on every published change.
	Version uint64 `json:"version"`
}

// Initial returns the state every store starts in.
func Initial() State {
	return State{Phase: PhaseInitializing}
}

// Initializing reports whether the startup session query is still pending.
func (s State) Initializing() bool { return s.Phase == PhaseInitializing }

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool { return s.Phase == PhaseAuthenticated && s.Identity != nil }

// UserID returns the authenticated identity's ID or "".
func (s State) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// Role maps the state onto the coarse role model.
func (s State) Role() Role {
	switch {
	case !s.Authenticated():
		return RoleGuest
	case s.IsAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	if s.Identity != nil {
		ident := *s.Identity
		s.Identity = &ident
	}
	return s
}

// Validate checks the structural invariants of a single snapshot.
func (s State) Validate() error {
	switch s.Phase {
	case PhaseInitializing, PhaseUnauthenticated:
		if s.Identity != nil {
			return fmt.Errorf("%w: %s state carries an identity", ErrInvalidTransition, s.Phase)
		}
		if s.IsAdmin {
			return fmt.Errorf("%w: %s state is admin", ErrInvalidTransition, s.Phase)
		}
	case PhaseAuthenticated:
		if s.Identity == nil || s.Identity.ID == "" {
			return fmt.Errorf("%w: authenticated state without identity", ErrInvalidTransition)
		}
		if s.IsAdmin && !s.RoleResolved {
			return fmt.Errorf("%w: admin flag set before role resolution", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, s.Phase)
	}
	return nil
}

// CheckTransition validates moving from prev to next.
func CheckTransition(prev, next State) error {
	if !CanTransition(prev.Phase, next.Phase) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Phase, next.Phase)
	}
	return next.Validate()
}
