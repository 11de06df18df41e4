// Package sessionhub holds the provider-side session shared by the identity
// provider adapters: it persists the session, refreshes it before expiry and
// notifies subscribers of every change.
package sessionhub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// Refresher exchanges the refresh token of sess for a new session.
type Refresher func(ctx context.Context, sess domainauth.Session) (domainauth.Session, error)

// Options configures a Hub. Every field is optional.
type Options struct {
	Persister ports.SessionPersister
	// Key names the persisted session. Defaults to "current".
	Key string
	// PersistTTL bounds how long a persisted session survives. Defaults to 30 days.
	PersistTTL time.Duration
	Refresh    Refresher
	// Margin is how long before expiry the refresh runs. Defaults to one minute.
	Margin time.Duration
	// RetryDelay spaces refresh attempts after a transient failure. Defaults to 30s.
	RetryDelay     time.Duration
	RefreshTimeout time.Duration
	Logger         *slog.Logger
	Clock          func() time.Time
}

// Hub is safe for concurrent use.
type Hub struct {
	persister  ports.SessionPersister
	key        string
	persistTTL time.Duration
	refresh    Refresher
	margin     time.Duration
	retry      time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	clock      func() time.Time

	// emitMu keeps notifications in the order the changes were made.
	emitMu sync.Mutex

	mu       sync.Mutex
	current  *domainauth.Session
	restored bool
	gen      uint64
	timer    *time.Timer
	subs     map[int]func(domainauth.Event)
	nextSub  int
	closed   bool
}

// New creates a Hub.
func New(opts Options) *Hub {
	h := &Hub{
		persister:  opts.Persister,
		key:        opts.Key,
		persistTTL: opts.PersistTTL,
		refresh:    opts.Refresh,
		margin:     opts.Margin,
		retry:      opts.RetryDelay,
		timeout:    opts.RefreshTimeout,
		logger:     opts.Logger,
		clock:      opts.Clock,
		subs:       make(map[int]func(domainauth.Event)),
	}
	if h.key == "" {
		h.key = "current"
	}
	if h.persistTTL <= 0 {
		h.persistTTL = 30 * 24 * time.Hour
	}
	if h.margin <= 0 {
		h.margin = time.Minute
	}
	if h.retry <= 0 {
		h.retry = 30 * time.Second
	}
	if h.timeout <= 0 {
		h.timeout = 30 * time.Second
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "session_hub")
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// Restore returns the active session, loading the persisted one on first use.
// A persisted session close to expiry is refreshed first; one that can no
// longer be refreshed is discarded.
func (h *Hub) Restore(ctx context.Context) (*domainauth.Session, error) {
	h.mu.Lock()
	if h.current != nil || h.restored || h.persister == nil {
		cur := copySession(h.current)
		h.restored = true
		h.mu.Unlock()
		return cur, nil
	}
	h.mu.Unlock()

	sess, err := h.persister.Load(ctx, h.key)
	if apperrors.IsNotFound(err) {
		h.markRestored()
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Network(err, "Unable to read the saved session.")
	}
	if !sess.Active() {
		h.markRestored()
		return nil, nil
	}

	if sess.ExpiresWithin(h.clock(), h.margin) {
		if h.refresh == nil || sess.RefreshToken == "" {
			h.discard(ctx)
			return nil, nil
		}
		next, rErr := h.refresh(ctx, sess)
		if rErr != nil {
			if isFatal(rErr) {
				h.logger.InfoContext(ctx, "saved session could not be refreshed", "user_id", sess.UserID, "error", rErr)
				h.discard(ctx)
				return nil, nil
			}
			return nil, rErr
		}
		sess = next
		h.persist(ctx, sess)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.restored = true
	if h.current != nil {
		// a sign-in finished while the saved session was loading
		return copySession(h.current), nil
	}
	h.current = &sess
	h.gen++
	h.scheduleLocked(sess, h.gen)
	return copySession(h.current), nil
}

// Current returns the active session without touching persistence.
func (h *Hub) Current() *domainauth.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copySession(h.current)
}

// Publish makes sess the active session, saves it and notifies subscribers with kind.
func (h *Hub) Publish(ctx context.Context, kind domainauth.EventKind, sess domainauth.Session) {
	h.publishIf(ctx, kind, sess, nil)
}

// Clear drops the active session, deletes the saved copy and notifies
// subscribers that the user signed out.
func (h *Hub) Clear(ctx context.Context) {
	h.clearIf(ctx, nil)
}

// publishIf applies sess. With expect set, nothing happens unless the session
// generation still equals *expect.
func (h *Hub) publishIf(ctx context.Context, kind domainauth.EventKind, sess domainauth.Session, expect *uint64) bool {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	if h.closed || (expect != nil && h.gen != *expect) {
		h.mu.Unlock()
		return false
	}
	h.current = &sess
	h.restored = true
	h.gen++
	h.scheduleLocked(sess, h.gen)
	subs := h.subscribersLocked()
	h.mu.Unlock()

	h.persist(ctx, sess)
	ev := domainauth.Event{Kind: kind, Session: copySession(&sess)}
	for _, fn := range subs {
		fn(ev)
	}
	return true
}

func (h *Hub) clearIf(ctx context.Context, expect *uint64) bool {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	if h.closed || (expect != nil && h.gen != *expect) {
		h.mu.Unlock()
		return false
	}
	h.current = nil
	h.restored = true
	h.gen++
	h.stopTimerLocked()
	subs := h.subscribersLocked()
	h.mu.Unlock()

	h.discard(ctx)
	ev := domainauth.Event{Kind: domainauth.EventSignedOut}
	for _, fn := range subs {
		fn(ev)
	}
	return true
}

// Subscribe registers fn for session changes and returns its cancel func.
func (h *Hub) Subscribe(fn func(domainauth.Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

// Close stops the refresh timer and drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.stopTimerLocked()
	clear(h.subs)
}

func (h *Hub) scheduleLocked(sess domainauth.Session, gen uint64) {
	h.stopTimerLocked()
	if h.refresh == nil || sess.RefreshToken == "" || sess.ExpiresAt.IsZero() {
		return
	}
	delay := sess.ExpiresAt.Add(-h.margin).Sub(h.clock())
	h.armLocked(max(delay, 0), gen)
}

func (h *Hub) armLocked(delay time.Duration, gen uint64) {
	h.timer = time.AfterFunc(delay, func() { h.refreshNow(gen) })
}

func (h *Hub) refreshNow(gen uint64) {
	h.mu.Lock()
	if h.closed || h.gen != gen || h.current == nil {
		h.mu.Unlock()
		return
	}
	sess := *h.current
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	next, err := h.refresh(ctx, sess)
	if err == nil {
		if h.publishIf(ctx, domainauth.EventTokenRefreshed, next, &gen) {
			h.logger.DebugContext(ctx, "session refreshed", "user_id", next.UserID)
		}
		return
	}

	if isFatal(err) {
		if h.clearIf(ctx, &gen) {
			h.logger.InfoContext(ctx, "session refresh rejected; signed out", "user_id", sess.UserID, "error", err)
		}
		return
	}

	h.logger.WarnContext(ctx, "session refresh failed; will retry", "user_id", sess.UserID, "retry_in", h.retry, "error", err)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed && h.gen == gen {
		h.armLocked(h.retry, gen)
	}
}

func (h *Hub) persist(ctx context.Context, sess domainauth.Session) {
	if h.persister == nil {
		return
	}
	if err := h.persister.Save(ctx, h.key, sess, h.persistTTL); err != nil {
		h.logger.WarnContext(ctx, "session not saved", "user_id", sess.UserID, "error", err)
	}
}

func (h *Hub) discard(ctx context.Context) {
	h.markRestored()
	if h.persister == nil {
		return
	}
	if err := h.persister.Delete(ctx, h.key); err != nil {
		h.logger.WarnContext(ctx, "saved session not deleted", "error", err)
	}
}

func (h *Hub) markRestored() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restored = true
}

func (h *Hub) subscribersLocked() []func(domainauth.Event) {
	out := make([]func(domainauth.Event), 0, len(h.subs))
	for _, fn := range h.subs {
		out = append(out, fn)
	}
	return out
}

func (h *Hub) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// isFatal reports whether a refresh failure means the session is gone for good.
func isFatal(err error) bool {
	return apperrors.IsCredential(err) || apperrors.IsUnauthenticated(err)
}

func copySession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// FromToken builds a session from an OAuth2 token response.
func FromToken(tok *oauth2.Token, userID, email string, now time.Time) domainauth.Session {
	sess := domainauth.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
		IssuedAt:     now.UTC(),
	}
	if sess.ExpiresAt.IsZero() && tok.ExpiresIn > 0 {
		sess.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return sess
}

// Token converts sess back to an OAuth2 token.
func Token(sess domainauth.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  sess.AccessToken,
		TokenType:    sess.TokenType,
		RefreshToken: sess.RefreshToken,
		Expiry:       sess.ExpiresAt,
	}
}
