//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"slices"
	"strings"
	"time"
)

// Profile is the application-level record for an authenticated user, keyed by the identity ID.
// Email mirrors the identity's email at creation time and is never edited here.
type Profile struct {
	ID        string    `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	FullName  string    `json:"full_name"  db:"full_name"`
	Phone     string    `json:"phone"      db:"phone"`
	Bio       string    `json:"bio"        db:"bio"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	IsAdmin   bool      `json:"is_admin"   db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the full name, falling back to the email address.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.Email
}

// Clone returns a shallow copy; Profile has no reference fields.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// DaysSinceJoined returns whole days between CreatedAt and now.
func (p *Profile) DaysSinceJoined(now time.Time) int {
	if p == nil || p.CreatedAt.IsZero() || now.Before(p.CreatedAt) {
		return 0
	}
	return int(now.Sub(p.CreatedAt) / (24 * time.Hour))
}

// Completeness is 100 when full name, phone and bio are all filled in, else 75.
func (p *Profile) Completeness() int {
	if p == nil {
		return 0
	}
	if strings.TrimSpace(p.FullName) != "" && p.Phone != "" && strings.TrimSpace(p.Bio) != "" {
		return 100
	}
	return 75
}

// ProfileChanges is the partial update applied by a ProfileStore.
// Nil fields are left untouched.
type ProfileChanges struct {
	FullName  *string
	Phone     *string
	Bio       *string
	AvatarURL *string
	IsAdmin   *bool
}

// Empty reports whether no field is set.
func (c ProfileChanges) Empty() bool {
	return c.FullName == nil && c.Phone == nil && c.Bio == nil && c.AvatarURL == nil && c.IsAdmin == nil
}

// Apply copies the set fields onto p.
func (c ProfileChanges) Apply(p *Profile) {
	if c.FullName != nil {
		p.FullName = *c.FullName
	}
	if c.Phone != nil {
		p.Phone = *c.Phone
	}
	if c.Bio != nil {
		p.Bio = *c.Bio
	}
	if c.AvatarURL != nil {
		p.AvatarURL = *c.AvatarURL
	}
	if c.IsAdmin != nil {
		p.IsAdmin = *c.IsAdmin
	}
}

// CreateProfileRequest creates the profile row written right after sign-up.
type CreateProfileRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// UpdateProfileRequest is a self-service edit. It cannot touch email or the admin flag.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// AdminUpdateProfileRequest is an administrative edit of another user's profile.
type AdminUpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}

// RegistrationInput is the sign-up form.
type RegistrationInput struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ProfileDraft is a local working copy of the editable fields.
// It is never written anywhere until saved.
type ProfileDraft struct {
	ProfileID string    `json:"profile_id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Bio       string    `json:"bio"`
	BaseAt    time.Time `json:"base_updated_at"`

	base Profile
}

// NewProfileDraft seeds a draft from the authoritative copy.
func NewProfileDraft(p *Profile) *ProfileDraft {
	return &ProfileDraft{
		ProfileID: p.ID,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Bio:       p.Bio,
		BaseAt:    p.UpdatedAt,
		base:      *p,
	}
}

// Request converts the draft into a self-service update carrying only the
// fields that differ from the copy the draft was seeded from.
func (d *ProfileDraft) Request() UpdateProfileRequest {
	var req UpdateProfileRequest
	if d.FullName != d.base.FullName {
		v := d.FullName
		req.FullName = &v
	}
	if d.Phone != d.base.Phone {
		v := d.Phone
		req.Phone = &v
	}
	if d.Bio != d.base.Bio {
		v := d.Bio
		req.Bio = &v
	}
	return req
}

// Dirty reports whether the draft differs from its seed.
func (d *ProfileDraft) Dirty() bool {
	req := d.Request()
	return req.FullName != nil || req.Phone != nil || req.Bio != nil
}

// ProfileStats summarises an admin listing.
type ProfileStats struct {
	Total   int `json:"total"`
	Admins  int `json:"admins"`
	Regular int `json:"regular"`
}

// ComputeProfileStats counts admins and regular users in list.
func ComputeProfileStats(list []*Profile) ProfileStats {
	var stats ProfileStats
	for _, p := range list {
		if p == nil {
			continue
		}
		stats.Total++
		if p.IsAdmin {
			stats.Admins++
		}
	}
	stats.Regular = stats.Total - stats.Admins
	return stats
}

// FilterProfiles returns the profiles whose full name or email contains query,
// case-insensitively. A blank query returns the whole list in its original order.
func FilterProfiles(list []*Profile, query string) []*Profile {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(list)
	}
	out := make([]*Profile, 0, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		if strings.Contains(strings.ToLower(p.FullName), q) || strings.Contains(strings.ToLower(p.Email), q) {
			out = append(out, p)
		}
	}
	return out
}

// SortProfilesNewestFirst orders profiles by creation time, newest first.
func SortProfilesNewestFirst(list []*Profile) {
	slices.SortStableFunc(list, func(a, b *Profile) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
