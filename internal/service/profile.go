package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	obserrors "github.com/accountdesk/accountdesk/internal/observability/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// DefaultMaxAvatarBytes caps avatar uploads.
const DefaultMaxAvatarBytes = 2 << 20

var avatarContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// ProfileServiceOptions groups dependencies for ProfileService.
type ProfileServiceOptions struct {
	Profiles ports.ProfileStore
	Sessions *SessionStore
	Deps     ProfileServiceDeps
}

// ProfileServiceDeps holds optional collaborators and settings.
type ProfileServiceDeps struct {
	Avatars        ports.AvatarStore
	Notices        *NoticeBoard
	Logger         *slog.Logger
	Metrics        Metrics
	PhoneRegion    string
	MaxAvatarBytes int
}

// ProfileService serves the signed-in user's own profile and keeps the
// authoritative copy for the current identity.
type ProfileService struct {
	profiles ports.ProfileStore
	sessions *SessionStore
	avatars  ports.AvatarStore
	notices  *NoticeBoard
	logger   *slog.Logger
	metrics  Metrics
	region   string
	maxBytes int

	saveGuard   *inflight
	avatarGuard *inflight

	mu    sync.Mutex
	cache *model.Profile
}

// NewProfileService constructs a ProfileService.
func NewProfileService(opts ProfileServiceOptions) *ProfileService {
	if opts.Profiles == nil || opts.Sessions == nil {
		panic("ProfileService requires a ProfileStore and a SessionStore")
	}
	logger := opts.Deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := opts.Deps.MaxAvatarBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAvatarBytes
	}
	region := opts.Deps.PhoneRegion
	if region == "" {
		region = model.DefaultPhoneRegion
	}
	return &ProfileService{
		profiles:    opts.Profiles,
		sessions:    opts.Sessions,
		avatars:     opts.Deps.Avatars,
		notices:     opts.Deps.Notices,
		logger:      logger.With("component", "profile_service"),
		metrics:     metricsOrNoop(opts.Deps.Metrics),
		region:      region,
		maxBytes:    maxBytes,
		saveGuard:   newInflight("Your profile is already being saved"),
		avatarGuard: newInflight("An avatar upload is already in progress"),
	}
}

// LoadProfile fetches a profile. It returns (nil, nil) when the identity has
// no profile row. Users may load their own profile; admins may load any.
func (s *ProfileService) LoadProfile(ctx context.Context, id string) (*model.Profile, error) {
	st, err := s.requireSelfOrAdmin(id)
	if err != nil {
		return nil, err
	}

	p, err := s.profiles.GetByID(ctx, id)
	if apperrors.IsNotFound(err) {
		if id == st.UserID() {
			s.storeCache(id, nil)
		}
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Normalize(err)
	}
	if id == st.UserID() {
		s.storeCache(id, p)
	}
	return p.Clone(), nil
}

// Current returns the signed-in user's profile, fetching it when not cached.
func (s *ProfileService) Current(ctx context.Context) (*model.Profile, error) {
	st := s.sessions.Current()
	if !st.Authenticated() {
		return nil, apperrors.Unauthenticated("Sign in to view your profile.")
	}
	if p := s.Cached(); p != nil {
		return p, nil
	}
	return s.LoadProfile(ctx, st.UserID())
}

// Cached returns the authoritative copy for the current identity, if loaded.
func (s *ProfileService) Cached() *model.Profile {
	userID := s.sessions.Current().UserID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil || s.cache.ID != userID {
		return nil
	}
	return s.cache.Clone()
}

// UpdateProfile applies a self-service edit to the caller's own profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) (p *model.Profile, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "update_profile", start, err) }()

	st := s.sessions.Current()
	if !st.Authenticated() {
		return nil, apperrors.Unauthenticated("Sign in to edit your profile.")
	}
	if id != st.UserID() {
		return nil, apperrors.Permission("You can only edit your own profile.")
	}
	release, err := s.saveGuard.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if nErr := req.Normalize(s.region); nErr != nil {
		return nil, validationError(nErr)
	}
	if vErr := req.Validate(); vErr != nil {
		return nil, validationError(vErr)
	}

	p, err = s.profiles.Update(ctx, id, req.Changes())
	if err != nil {
		return nil, apperrors.Normalize(err)
	}
	s.storeCache(id, p)
	s.notices.Success("Profile updated successfully!")
	return p.Clone(), nil
}

// SetAvatar uploads an image and records its URL on the caller's profile.
func (s *ProfileService) SetAvatar(ctx context.Context, contentType string, data []byte) (p *model.Profile, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "set_avatar", start, err) }()

	st := s.sessions.Current()
	if !st.Authenticated() {
		return nil, apperrors.Unauthenticated("Sign in to change your avatar.")
	}
	if s.avatars == nil {
		return nil, apperrors.Unsupported("Avatar uploads are not configured.")
	}
	release, err := s.avatarGuard.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ct, vErr := s.avatarContentType(contentType, data)
	if vErr != nil {
		return nil, vErr
	}

	ref, err := s.avatars.Upload(ctx, st.UserID(), ct, data)
	if err != nil {
		return nil, apperrors.Normalize(err)
	}
	return s.saveAvatarURL(ctx, st.UserID(), ref)
}

// SetAvatarURL points the caller's avatar at an existing http(s) image.
func (s *ProfileService) SetAvatarURL(ctx context.Context, ref string) (p *model.Profile, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "set_avatar_url", start, err) }()

	st := s.sessions.Current()
	if !st.Authenticated() {
		return nil, apperrors.Unauthenticated("Sign in to change your avatar.")
	}
	ref = strings.TrimSpace(ref)
	if vErr := validation.Validate(ref, validation.Required, is.URL); vErr != nil || !isHTTPURL(ref) {
		return nil, apperrors.ValidationField("avatar_url", "Enter an http or https image URL")
	}
	return s.saveAvatarURL(ctx, st.UserID(), ref)
}

func (s *ProfileService) saveAvatarURL(ctx context.Context, userID, ref string) (*model.Profile, error) {
	p, err := s.profiles.Update(ctx, userID, model.ProfileChanges{AvatarURL: &ref})
	if err != nil {
		return nil, apperrors.Normalize(err)
	}
	s.storeCache(userID, p)
	s.notices.Success("Avatar updated successfully!")
	return p.Clone(), nil
}

// BeginEdit returns a draft seeded from the authoritative profile.
func (s *ProfileService) BeginEdit(ctx context.Context) (*model.ProfileDraft, error) {
	p, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.NotFound("Profile not found")
	}
	return model.NewProfileDraft(p), nil
}

// SaveDraft persists the changed fields of a draft. Concurrent edits are
// last-writer-wins. A draft with no changes is not written.
func (s *ProfileService) SaveDraft(ctx context.Context, draft *model.ProfileDraft) (*model.Profile, error) {
	if draft == nil {
		return nil, apperrors.Validation("Nothing to save")
	}
	if !draft.Dirty() {
		return s.Current(ctx)
	}
	if cached := s.Cached(); cached != nil && cached.UpdatedAt.After(draft.BaseAt) {
		s.logger.DebugContext(ctx, "saving draft over a newer profile", "user_id", draft.ProfileID)
	}
	return s.UpdateProfile(ctx, draft.ProfileID, draft.Request())
}

// CancelDraft discards a draft and returns the authoritative copy.
func (s *ProfileService) CancelDraft(ctx context.Context, _ *model.ProfileDraft) (*model.Profile, error) {
	return s.Current(ctx)
}

func (s *ProfileService) requireSelfOrAdmin(id string) (domainauth.State, error) {
	st := s.sessions.Current()
	if !st.Authenticated() {
		return st, apperrors.Unauthenticated("Sign in to view profiles.")
	}
	if strings.TrimSpace(id) == "" {
		return st, apperrors.ValidationField("id", "Profile id is required")
	}
	if id != st.UserID() && !st.IsAdmin {
		return st, apperrors.Permission("You can only view your own profile.")
	}
	return st, nil
}

// avatarContentType checks the upload and returns its media type, sniffing
// it when the caller sent none.
func (s *ProfileService) avatarContentType(contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.ValidationField("avatar", "Choose an image to upload")
	}
	if len(data) > s.maxBytes {
		return "", apperrors.ValidationField("avatar", "Image is too large")
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if _, ok := avatarContentTypes[ct]; !ok {
		return "", apperrors.ValidationField("avatar", "Avatar must be a PNG, JPEG, GIF or WebP image")
	}
	return ct, nil
}

func isHTTPURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *ProfileService) storeCache(userID string, p *model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// the identity may have changed while the request was in flight
	if s.sessions.Current().UserID() != userID {
		return
	}
	s.cache = p.Clone()
}

func (s *ProfileService) finish(ctx context.Context, action string, start time.Time, err error) {
	observe(s.metrics, action, start, err)
	if err == nil {
		return
	}
	s.notices.Error(err)
	if apperrors.IsInternal(err) {
		s.logger.ErrorContext(ctx, action+" failed", "error", err, "error_type", obserrors.Classify(err))
		return
	}
	s.logger.DebugContext(ctx, action+" failed", "code", apperrors.GetCode(err), "error", err)
}
