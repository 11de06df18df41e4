package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// ErrSessionStoreClosed is returned by operations on a closed SessionStore.
var ErrSessionStoreClosed = errors.New("session store closed")

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Provider ports.IdentityProvider
	Resolver *AuthorizationResolver
	Config   SessionStoreConfig
}

// SessionStoreConfig holds optional SessionStore settings.
type SessionStoreConfig struct {
	Logger      *slog.Logger
	Metrics     Metrics
	EventBuffer int
}

// SessionStore is the single owner of the client session state. It follows
// the identity provider's notifications, resolves the role for each new
// identity and broadcasts every change to subscribers.
//
// All mutations go through one mutex. A generation counter is bumped on each
// identity change so a role lookup that finishes after the identity moved on
// is discarded instead of applied. Role lookups run on the store's own
// context; callers only wait for them, so a caller giving up never decides
// the role.
//
// Clear also bumps a sign-out epoch. Provider notifications are stamped with
// the epoch they were queued in, and those queued before a Clear are dropped.
type SessionStore struct {
	provider ports.IdentityProvider
	resolver *AuthorizationResolver
	logger   *slog.Logger
	metrics  Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	resolving sync.WaitGroup
	epoch     atomic.Uint64

	events   chan queuedEvent
	done     chan struct{}
	loopDone chan struct{}
	ready    chan struct{}

	mu          sync.Mutex
	state       domainauth.State
	gen         uint64
	pendingID   string
	pendingDone chan struct{}
	pendingTok  domainauth.Identity
	subs        map[uint64]chan domainauth.State
	nextSub     uint64
	started     bool
	closed      bool
	unsubscribe func()
}

type queuedEvent struct {
	domainauth.Event
	epoch uint64
}

// NewSessionStore constructs a SessionStore in the initializing phase.
func NewSessionStore(opts SessionStoreOptions) *SessionStore {
	if opts.Provider == nil {
		panic("SessionStore requires an IdentityProvider")
	}
	if opts.Resolver == nil {
		panic("SessionStore requires an AuthorizationResolver")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buf := opts.Config.EventBuffer
	if buf <= 0 {
		buf = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionStore{
		ctx:      ctx,
		cancel:   cancel,
		provider: opts.Provider,
		resolver: opts.Resolver,
		logger:   logger.With("component", "session_store"),
		metrics:  metricsOrNoop(opts.Config.Metrics),
		events:   make(chan queuedEvent, buf),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ready:    make(chan struct{}),
		state:    domainauth.Initial(),
		subs:     make(map[uint64]chan domainauth.State),
	}
}

// Start subscribes to provider notifications and runs the startup session
// query. It returns once the initializing phase is over. A failed query ends
// in the unauthenticated phase rather than an error.
func (s *SessionStore) Start(ctx context.Context) (domainauth.State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domainauth.State{}, ErrSessionStoreClosed
	}
	if s.started {
		s.mu.Unlock()
		return s.waitReady(ctx)
	}
	s.started = true
	s.unsubscribe = s.provider.OnSessionChange(s.enqueue)
	startGen := s.gen
	s.mu.Unlock()

	go s.loop()

	sess, err := s.provider.CurrentSession(ctx)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "startup session query failed", "error", err)
		s.finishInit(startGen)
	case sess == nil || !sess.Active():
		s.finishInit(startGen)
	default:
		if _, estErr := s.establish(ctx, sess.Identity(), establishOptions{guard: &startGen}); estErr != nil {
			s.logger.WarnContext(ctx, "startup session could not be applied", "error", estErr)
			s.finishInit(startGen)
		}
	}
	s.settleInit(ctx)
	close(s.ready)
	return s.Current(), nil
}

// settleInit waits for a lookup started by a notification that raced the
// startup query, so Start never returns while still initializing.
func (s *SessionStore) settleInit(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.state.Phase != domainauth.PhaseInitializing {
			s.mu.Unlock()
			return
		}
		done := s.pendingDone
		gen := s.gen
		s.mu.Unlock()

		if done == nil {
			s.finishInit(gen)
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			s.finishInit(gen)
			return
		}
	}
}

// Ready is closed once the initializing phase is over.
func (s *SessionStore) Ready() <-chan struct{} { return s.ready }

func (s *SessionStore) waitReady(ctx context.Context) (domainauth.State, error) {
	select {
	case <-s.ready:
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

// Current returns a snapshot of the session state.
func (s *SessionStore) Current() domainauth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe returns a channel that always holds the latest state. Intermediate
// states may be skipped by slow readers. The channel is closed by cancel or Close.
func (s *SessionStore) Subscribe() (<-chan domainauth.State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domainauth.State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Watch calls fn with every state it observes until ctx is done or the store closes.
func (s *SessionStore) Watch(ctx context.Context, fn func(domainauth.State)) {
	ch, cancel := s.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			fn(st)
		}
	}
}

// Establish applies a session obtained directly from the provider and returns
// the resulting state once the role is resolved.
func (s *SessionStore) Establish(ctx context.Context, ident domainauth.Identity) (domainauth.State, error) {
	return s.establish(ctx, ident, establishOptions{})
}

// RefreshRole re-resolves the role of the current identity, ignoring any memo.
func (s *SessionStore) RefreshRole(ctx context.Context) (domainauth.State, error) {
	cur := s.Current()
	if !cur.Authenticated() {
		return cur, nil
	}
	s.resolver.Forget()
	return s.establish(ctx, *cur.Identity, establishOptions{force: true})
}

// Clear moves to the unauthenticated phase unconditionally. Provider
// notifications queued before the call are not applied afterwards.
func (s *SessionStore) Clear(reason string) domainauth.State {
	return s.clear(reason, true)
}

func (s *SessionStore) clear(reason string, newEpoch bool) domainauth.State {
	s.mu.Lock()
	if newEpoch {
		s.epoch.Add(1)
	}
	s.gen++
	s.releasePendingLocked()
	if s.state.Phase != domainauth.PhaseUnauthenticated {
		prevUser := s.state.UserID()
		if err := s.setLocked(domainauth.State{Phase: domainauth.PhaseUnauthenticated}); err == nil {
			s.logger.Info("session cleared", "user_id", prevUser, "reason", reason)
		}
	}
	st := s.state.Clone()
	s.mu.Unlock()

	s.resolver.Forget()
	return st
}

// Close stops following the provider and closes every subscription.
func (s *SessionStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.releasePendingLocked()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.done)
	s.cancel()
	s.mu.Unlock()

	if started {
		<-s.loopDone
	}
	s.resolving.Wait()
}

func (s *SessionStore) enqueue(ev domainauth.Event) {
	select {
	case s.events <- queuedEvent{Event: ev, epoch: s.epoch.Load()}:
	case <-s.done:
	}
}

func (s *SessionStore) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *SessionStore) handleEvent(ev queuedEvent) {
	if ev.Cleared() {
		// in order with the events around it, so no new epoch
		s.clear(string(ev.Kind), false)
		return
	}
	if !ev.Session.Active() {
		return
	}
	if ev.epoch != s.epoch.Load() {
		s.logger.Debug("dropping session event queued before sign-out", "event", ev.Kind)
		return
	}
	if _, err := s.establish(s.ctx, ev.Session.Identity(), establishOptions{epoch: &ev.epoch}); err != nil && !errors.Is(err, ErrSessionStoreClosed) {
		s.logger.Warn("session event not applied", "event", ev.Kind, "error", err)
	}
}

type establishOptions struct {
	// guard discards the call if the generation moved past it.
	guard *uint64
	// epoch discards the call if a Clear happened after it was taken.
	epoch *uint64
	// force re-resolves the role even when a fresh memo exists.
	force bool
}

func (s *SessionStore) establish(ctx context.Context, ident domainauth.Identity, opts establishOptions) (domainauth.State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domainauth.State{}, ErrSessionStoreClosed
	}
	if (opts.guard != nil && s.gen != *opts.guard) || (opts.epoch != nil && s.epoch.Load() != *opts.epoch) {
		st := s.state.Clone()
		s.mu.Unlock()
		return st, nil
	}

	// A lookup for this identity is already running: carry the newer token
	// and wait for it instead of starting another.
	if s.pendingID == ident.ID && s.pendingDone != nil {
		s.pendingTok = ident
		done := s.pendingDone
		s.mu.Unlock()
		return s.waitPending(ctx, done)
	}

	cur := s.state
	sameIdentity := cur.Authenticated() && cur.Identity.Same(ident)
	if sameIdentity && !opts.force {
		if res, fresh := s.resolver.Cached(ident.ID); fresh && cur.RoleResolved {
			next := cur.Clone()
			next.Identity = &ident
			next.IsAdmin = res.IsAdmin()
			err := s.setLocked(next)
			st := s.state.Clone()
			s.mu.Unlock()
			return st, err
		}
	}

	s.gen++
	gen := s.gen
	s.releasePendingLocked()
	s.pendingID = ident.ID
	s.pendingTok = ident
	s.pendingDone = make(chan struct{})
	done := s.pendingDone

	if cur.Authenticated() && !sameIdentity {
		// A different principal never inherits the previous admin flag.
		if err := s.setLocked(domainauth.State{Phase: domainauth.PhaseAuthenticated, Identity: &ident}); err != nil {
			s.releasePendingLocked()
			s.mu.Unlock()
			return s.Current(), err
		}
	}
	s.resolving.Add(1)
	go s.resolve(ident, gen, done)
	s.mu.Unlock()

	return s.waitPending(ctx, done)
}

// resolve looks up the role for ident and applies it unless the generation
// moved on in the meantime.
func (s *SessionStore) resolve(ident domainauth.Identity, gen uint64, done chan struct{}) {
	defer s.resolving.Done()
	res := s.resolver.Resolve(s.ctx, ident)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.closed {
		return
	}
	latest := s.pendingTok
	next := domainauth.State{
		Phase:        domainauth.PhaseAuthenticated,
		Identity:     &latest,
		IsAdmin:      res.IsAdmin(),
		RoleResolved: true,
	}
	prevPhase := s.state.Phase
	err := s.setLocked(next)
	s.pendingID = ""
	s.pendingDone = nil
	close(done)
	if err == nil && prevPhase != domainauth.PhaseAuthenticated {
		s.logger.Info("session established", "user_id", ident.ID, "role", next.Role(), "role_reason", res.Reason)
	}
}

func (s *SessionStore) waitPending(ctx context.Context, done <-chan struct{}) (domainauth.State, error) {
	select {
	case <-done:
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

func (s *SessionStore) finishInit(startGen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != startGen || s.state.Phase != domainauth.PhaseInitializing {
		return
	}
	_ = s.setLocked(domainauth.State{Phase: domainauth.PhaseUnauthenticated})
}

func (s *SessionStore) releasePendingLocked() {
	if s.pendingDone != nil {
		close(s.pendingDone)
	}
	s.pendingDone = nil
	s.pendingID = ""
}

// setLocked validates and publishes next. Caller holds s.mu.
func (s *SessionStore) setLocked(next domainauth.State) error {
	prev := s.state
	if err := domainauth.CheckTransition(prev, next); err != nil {
		s.logger.Error("rejected session transition", "from", prev.Phase, "to", next.Phase, "error", err)
		return err
	}
	next = next.Clone()
	next.Version = prev.Version + 1
	s.state = next
	s.metrics.SessionTransition(string(prev.Phase), string(next.Phase))

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next.Clone():
		default:
		}
	}
	return nil
}
