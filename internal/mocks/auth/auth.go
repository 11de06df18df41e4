package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.SessionPersister = (*MemorySessionPersister)(nil)
	_ ports.ProfileStore     = (*MemoryProfileStore)(nil)
	_ ports.AvatarStore      = (*MemoryAvatarStore)(nil)
)

// Account is a credential the fake provider accepts.
type Account struct {
	UserID   string
	Password string
	// Unverified accounts are rejected with a credential error.
	Unverified bool
}

// FakeIdentityProvider simulates a hosted identity service. Each operation
// can be overridden with a Func field; otherwise it works against Accounts.
type FakeIdentityProvider struct {
	CurrentFunc        func(ctx context.Context) (*domainauth.Session, error)
	SignInFunc         func(ctx context.Context, email, password string) (domainauth.Session, error)
	SignUpFunc         func(ctx context.Context, email, password string) (domainauth.Session, error)
	SignOutFunc        func(ctx context.Context) error
	ResetFunc          func(ctx context.Context, email, redirectTo string) error
	UpdatePasswordFunc func(ctx context.Context, newPassword string) error

	// EmitOnSignIn makes successful sign-in and sign-up also notify subscribers,
	// the way real providers do.
	EmitOnSignIn bool

	SignInCalls atomic.Int32
	SignUpCalls atomic.Int32
	ResetCalls  atomic.Int32

	mu       sync.Mutex
	accounts map[string]Account
	current  *domainauth.Session
	subs     map[int]func(domainauth.Event)
	nextSub  int
	seq      int
}

// NewFakeIdentityProvider creates a provider with no accounts and no session.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		accounts: make(map[string]Account),
		subs:     make(map[int]func(domainauth.Event)),
	}
}

// AddAccount registers credentials the provider accepts.
func (f *FakeIdentityProvider) AddAccount(email string, acct Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = acct
}

// SetCurrent sets the session returned by CurrentSession without notifying anyone.
func (f *FakeIdentityProvider) SetCurrent(sess *domainauth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = sess
}

// Session builds a session for userID with a fresh token.
func (f *FakeIdentityProvider) Session(userID, email string) domainauth.Session {
	f.mu.Lock()
	f.seq++
	n := f.seq
	f.mu.Unlock()
	now := time.Now().UTC()
	return domainauth.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  fmt.Sprintf("access-%s-%d", userID, n),
		RefreshToken: fmt.Sprintf("refresh-%s-%d", userID, n),
		TokenType:    "bearer",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

// Emit delivers ev to every subscriber synchronously.
func (f *FakeIdentityProvider) Emit(ev domainauth.Event) {
	f.mu.Lock()
	if ev.Cleared() {
		f.current = nil
	} else {
		s := *ev.Session
		f.current = &s
	}
	subs := make([]func(domainauth.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Subscribers returns the number of active subscriptions.
func (f *FakeIdentityProvider) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *FakeIdentityProvider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	if f.CurrentFunc != nil {
		return f.CurrentFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, nil
	}
	s := *f.current
	return &s, nil
}

func (f *FakeIdentityProvider) OnSessionChange(fn func(domainauth.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *FakeIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (domainauth.Session, error) {
	f.SignInCalls.Add(1)
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	f.mu.Lock()
	acct, ok := f.accounts[email]
	f.mu.Unlock()
	switch {
	case !ok:
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonUnknownAccount, "No account found for this email")
	case acct.Password != password:
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonInvalidCredentials, "Invalid login credentials")
	case acct.Unverified:
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonUnverified, "Email not confirmed")
	}
	sess := f.Session(acct.UserID, email)
	f.established(sess)
	return sess, nil
}

func (f *FakeIdentityProvider) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	f.SignUpCalls.Add(1)
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password)
	}
	f.mu.Lock()
	if _, exists := f.accounts[email]; exists {
		f.mu.Unlock()
		return domainauth.Session{}, apperrors.Credential(apperrors.ReasonAccountExists, "User already registered")
	}
	userID := fmt.Sprintf("user-%d", len(f.accounts)+1)
	f.accounts[email] = Account{UserID: userID, Password: password}
	f.mu.Unlock()

	sess := f.Session(userID, email)
	f.established(sess)
	return sess, nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context) error {
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	f.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	return nil
}

func (f *FakeIdentityProvider) SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error {
	f.ResetCalls.Add(1)
	if f.ResetFunc != nil {
		return f.ResetFunc(ctx, email, redirectTo)
	}
	return nil
}

func (f *FakeIdentityProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	if f.UpdatePasswordFunc != nil {
		return f.UpdatePasswordFunc(ctx, newPassword)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return apperrors.Unauthenticated("Auth session missing")
	}
	for email, acct := range f.accounts {
		if acct.UserID == f.current.UserID {
			acct.Password = newPassword
			f.accounts[email] = acct
		}
	}
	return nil
}

func (f *FakeIdentityProvider) established(sess domainauth.Session) {
	if f.EmitOnSignIn {
		f.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: &sess})
		return
	}
	f.SetCurrent(&sess)
}

// MemorySessionPersister is an in-memory session persister for unit tests.
type MemorySessionPersister struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionPersister creates an empty persister.
func NewMemorySessionPersister() *MemorySessionPersister {
	return &MemorySessionPersister{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionPersister) Save(_ context.Context, key string, sess domainauth.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = sess
	return nil
}

func (m *MemorySessionPersister) Load(_ context.Context, key string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	return sess, nil
}

func (m *MemorySessionPersister) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

// MemoryProfileStore is an in-memory ProfileStore. Err fields force failures
// and hooks run before the matching operation, e.g. to block on a channel.
type MemoryProfileStore struct {
	GetErr    error
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	GetHook func(ctx context.Context, id string)

	GetCalls    atomic.Int32
	ListCalls   atomic.Int32
	UpdateCalls atomic.Int32

	Now func() time.Time

	mu       sync.Mutex
	profiles map[string]*model.Profile
}

// NewMemoryProfileStore creates a store seeded with profiles.
func NewMemoryProfileStore(seed ...*model.Profile) *MemoryProfileStore {
	m := &MemoryProfileStore{profiles: make(map[string]*model.Profile)}
	for _, p := range seed {
		m.profiles[p.ID] = p.Clone()
	}
	return m
}

// Put inserts or replaces a profile directly.
func (m *MemoryProfileStore) Put(p *model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p.Clone()
}

// Peek returns the stored copy without counting a call.
func (m *MemoryProfileStore) Peek(id string) (*model.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	return p.Clone(), ok
}

func (m *MemoryProfileStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *MemoryProfileStore) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	m.GetCalls.Add(1)
	if m.GetHook != nil {
		m.GetHook(ctx, id)
	}
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("Profile not found")
	}
	return p.Clone(), nil
}

func (m *MemoryProfileStore) List(_ context.Context) ([]*model.Profile, error) {
	m.ListCalls.Add(1)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.Clone())
	}
	model.SortProfilesNewestFirst(out)
	return out, nil
}

func (m *MemoryProfileStore) Create(_ context.Context, req model.CreateProfileRequest) (*model.Profile, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[req.ID]; exists {
		return nil, apperrors.Conflict("A profile already exists for this account.")
	}
	now := m.now()
	p := &model.Profile{ID: req.ID, Email: req.Email, FullName: req.FullName, CreatedAt: now, UpdatedAt: now}
	m.profiles[p.ID] = p
	return p.Clone(), nil
}

func (m *MemoryProfileStore) Update(_ context.Context, id string, changes model.ProfileChanges) (*model.Profile, error) {
	m.UpdateCalls.Add(1)
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("Profile not found")
	}
	changes.Apply(p)
	now := m.now()
	if !now.After(p.UpdatedAt) {
		now = p.UpdatedAt.Add(time.Microsecond)
	}
	p.UpdatedAt = now
	return p.Clone(), nil
}

func (m *MemoryProfileStore) Delete(_ context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return apperrors.NotFound("Profile not found")
	}
	delete(m.profiles, id)
	return nil
}

// MemoryAvatarStore records uploads and returns deterministic URLs.
type MemoryAvatarStore struct {
	Err error

	mu      sync.Mutex
	Uploads map[string][]byte
}

func (m *MemoryAvatarStore) Upload(_ context.Context, userID, _ string, data []byte) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Uploads == nil {
		m.Uploads = make(map[string][]byte)
	}
	m.Uploads[userID] = append([]byte(nil), data...)
	return "https://avatars.test/" + userID, nil
}
