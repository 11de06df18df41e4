package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	obserrors "github.com/accountdesk/accountdesk/internal/observability/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

// AdminServiceOptions groups dependencies for AdminService.
type AdminServiceOptions struct {
	Profiles ports.ProfileStore
	Sessions *SessionStore
	Deps     AdminServiceDeps
}

// AdminServiceDeps holds optional collaborators and settings.
type AdminServiceDeps struct {
	Notices     *NoticeBoard
	Logger      *slog.Logger
	Metrics     Metrics
	PhoneRegion string
}

// AdminService implements the user-management console. Every operation
// checks the resolved admin flag before touching the record store.
type AdminService struct {
	profiles ports.ProfileStore
	sessions *SessionStore
	notices  *NoticeBoard
	logger   *slog.Logger
	metrics  Metrics
	region   string

	mu        sync.Mutex
	listing   []*model.Profile
	listingBy string
}

// NewAdminService constructs an AdminService.
func NewAdminService(opts AdminServiceOptions) *AdminService {
	if opts.Profiles == nil || opts.Sessions == nil {
		panic("AdminService requires a ProfileStore and a SessionStore")
	}
	logger := opts.Deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	region := opts.Deps.PhoneRegion
	if region == "" {
		region = model.DefaultPhoneRegion
	}
	return &AdminService{
		profiles: opts.Profiles,
		sessions: opts.Sessions,
		notices:  opts.Deps.Notices,
		logger:   logger.With("component", "admin_service"),
		metrics:  metricsOrNoop(opts.Deps.Metrics),
		region:   region,
	}
}

// RequireAdmin returns a permission error unless the current identity is a
// resolved admin.
func (s *AdminService) RequireAdmin() error {
	st := s.sessions.Current()
	if !st.Authenticated() {
		return apperrors.Unauthenticated("Sign in to continue.")
	}
	if !st.RoleResolved || !st.IsAdmin {
		return apperrors.Permission("Administrator access is required.")
	}
	return nil
}

// ListProfiles loads every profile, newest first, and keeps the listing for SearchProfiles.
func (s *AdminService) ListProfiles(ctx context.Context) (list []*model.Profile, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "list_profiles", start, err) }()

	if err = s.RequireAdmin(); err != nil {
		return nil, err
	}
	list, err = s.profiles.List(ctx)
	if err != nil {
		return nil, apperrors.Normalize(err)
	}
	model.SortProfilesNewestFirst(list)

	s.mu.Lock()
	s.listing = cloneProfiles(list)
	s.listingBy = s.sessions.Current().UserID()
	s.mu.Unlock()
	return list, nil
}

// SearchProfiles filters the last loaded listing by name or email without a
// remote call. A blank query returns the whole listing.
func (s *AdminService) SearchProfiles(query string) ([]*model.Profile, error) {
	if err := s.RequireAdmin(); err != nil {
		return nil, err
	}
	return model.FilterProfiles(s.loadedListing(), query), nil
}

// Stats summarises the last loaded listing.
func (s *AdminService) Stats() (model.ProfileStats, error) {
	if err := s.RequireAdmin(); err != nil {
		return model.ProfileStats{}, err
	}
	return model.ComputeProfileStats(s.loadedListing()), nil
}

// UpdateProfile edits another user's profile, including the admin flag, and
// reloads the listing. Changing one's own admin flag re-resolves the session role.
func (s *AdminService) UpdateProfile(ctx context.Context, id string, req model.AdminUpdateProfileRequest) (p *model.Profile, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "admin_update_profile", start, err) }()

	if err = s.RequireAdmin(); err != nil {
		return nil, err
	}
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
	actor := s.sessions.Current().UserID()
	s.logger.InfoContext(ctx, "profile updated by admin", "actor_id", actor, "user_id", id, "admin_flag_changed", req.IsAdmin != nil)

	if req.IsAdmin != nil && id == actor {
		if _, rErr := s.sessions.RefreshRole(ctx); rErr != nil {
			s.logger.WarnContext(ctx, "role refresh after self edit failed", "error", rErr)
		}
	}
	s.reload(ctx)
	s.notices.Success("User updated successfully!")
	return p, nil
}

// DeleteProfile removes a profile after the confirmer agrees. A declined
// confirmation returns a canceled error and touches nothing.
func (s *AdminService) DeleteProfile(ctx context.Context, id string, confirm ports.Confirmer) (err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "admin_delete_profile", start, err) }()

	if err = s.RequireAdmin(); err != nil {
		return err
	}
	if confirm == nil {
		return apperrors.Canceled("Deletion was not confirmed.")
	}
	ok, err := confirm.Confirm(ctx, "Are you sure you want to delete this user?")
	if err != nil {
		return apperrors.Normalize(err)
	}
	if !ok {
		return apperrors.Canceled("Deletion was not confirmed.")
	}

	if err = s.profiles.Delete(ctx, id); err != nil {
		return apperrors.Normalize(err)
	}
	s.logger.InfoContext(ctx, "profile deleted by admin", "actor_id", s.sessions.Current().UserID(), "user_id", id)
	s.reload(ctx)
	s.notices.Success("User deleted successfully!")
	return nil
}

func (s *AdminService) reload(ctx context.Context) {
	list, err := s.profiles.List(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "listing reload failed", "error", err)
		return
	}
	model.SortProfilesNewestFirst(list)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = list
	s.listingBy = s.sessions.Current().UserID()
}

func (s *AdminService) loadedListing() []*model.Profile {
	userID := s.sessions.Current().UserID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listingBy != userID {
		return nil
	}
	return cloneProfiles(s.listing)
}

func (s *AdminService) finish(ctx context.Context, action string, start time.Time, err error) {
	observe(s.metrics, action, start, err)
	if err == nil {
		return
	}
	s.notices.Error(err)
	if apperrors.IsPermission(err) || apperrors.IsUnauthenticated(err) {
		s.logger.WarnContext(ctx, action+" denied", "user_id", s.sessions.Current().UserID())
		return
	}
	if apperrors.IsInternal(err) {
		s.logger.ErrorContext(ctx, action+" failed", "error", err, "error_type", obserrors.Classify(err))
		return
	}
	s.logger.DebugContext(ctx, action+" failed", "code", apperrors.GetCode(err), "error", err)
}

func cloneProfiles(list []*model.Profile) []*model.Profile {
	out := make([]*model.Profile, 0, len(list))
	for _, p := range list {
		out = append(out, p.Clone())
	}
	return out
}
