package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// NoticeKind distinguishes success and error notices.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a user-facing message about the outcome of the last action.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// NoticeBoard holds at most one notice. Success notices clear themselves
// after the configured TTL; error notices stay until dismissed or replaced.
// A nil *NoticeBoard ignores every call.
type NoticeBoard struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	current *Notice
	timer   *time.Timer
}

// NewNoticeBoard creates a board whose success notices expire after ttl.
func NewNoticeBoard(ttl time.Duration) *NoticeBoard {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &NoticeBoard{ttl: ttl, clock: time.Now}
}

// Success posts a success notice that auto-dismisses.
func (b *NoticeBoard) Success(message string) {
	if b == nil {
		return
	}
	n := b.post(NoticeSuccess, message)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = time.AfterFunc(b.ttl, func() { b.dismissIf(n.ID) })
}

// Error posts the user-facing message of err.
func (b *NoticeBoard) Error(err error) {
	if b == nil || err == nil {
		return
	}
	b.post(NoticeError, apperrors.UserMessage(err))
}

// Current returns the active notice, if any.
func (b *NoticeBoard) Current() (Notice, bool) {
	if b == nil {
		return Notice{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

// Dismiss clears the active notice.
func (b *NoticeBoard) Dismiss() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.current = nil
}

func (b *NoticeBoard) post(kind NoticeKind, message string) Notice {
	n := Notice{ID: uuid.NewString(), Kind: kind, Message: message, CreatedAt: b.clock()}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.current = &n
	return n
}

func (b *NoticeBoard) dismissIf(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.ID == id {
		b.current = nil
	}
}

func (b *NoticeBoard) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
