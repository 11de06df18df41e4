// Package testutil provides testing utilities and helpers for the account services.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/accountdesk/accountdesk/internal/domain/model"
)

// ProfileBuilder provides a fluent interface for building profiles in tests.
type ProfileBuilder struct {
	p model.Profile
}

// NewProfile creates a ProfileBuilder with a random id and matching email.
func NewProfile() *ProfileBuilder {
	id := uuid.NewString()
	now := TestTime()
	return &ProfileBuilder{p: model.Profile{
		ID:        id,
		Email:     "user-" + id[:8] + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// WithID sets the profile id.
func (b *ProfileBuilder) WithID(id string) *ProfileBuilder {
	b.p.ID = id
	return b
}

// WithEmail sets the email.
func (b *ProfileBuilder) WithEmail(email string) *ProfileBuilder {
	b.p.Email = email
	return b
}

// WithName sets the full name.
func (b *ProfileBuilder) WithName(name string) *ProfileBuilder {
	b.p.FullName = name
	return b
}

// WithPhone sets the phone number.
func (b *ProfileBuilder) WithPhone(phone string) *ProfileBuilder {
	b.p.Phone = phone
	return b
}

// WithBio sets the bio.
func (b *ProfileBuilder) WithBio(bio string) *ProfileBuilder {
	b.p.Bio = bio
	return b
}

// Admin marks the profile as an administrator.
func (b *ProfileBuilder) Admin() *ProfileBuilder {
	b.p.IsAdmin = true
	return b
}

// CreatedAt sets both timestamps.
func (b *ProfileBuilder) CreatedAt(t time.Time) *ProfileBuilder {
	b.p.CreatedAt = t
	b.p.UpdatedAt = t
	return b
}

// Build returns the profile.
func (b *ProfileBuilder) Build() *model.Profile {
	p := b.p
	return &p
}

// CreateRequest returns the request that creates this profile.
func (b *ProfileBuilder) CreateRequest() model.CreateProfileRequest {
	return model.CreateProfileRequest{ID: b.p.ID, Email: b.p.Email, FullName: b.p.FullName}
}
