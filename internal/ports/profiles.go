package ports

import (
	"context"

	"github.com/accountdesk/accountdesk/internal/domain/model"
)

// ProfileStore is the remote record store holding user profiles.
// Absent rows are reported as a not_found AppError.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// List returns every profile, newest first.
	List(ctx context.Context) ([]*model.Profile, error)
	Create(ctx context.Context, req model.CreateProfileRequest) (*model.Profile, error)
	// Update applies changes and bumps updated_at strictly past its previous value.
	Update(ctx context.Context, id string, changes model.ProfileChanges) (*model.Profile, error)
	Delete(ctx context.Context, id string) error
}

// AvatarStore uploads avatar images and returns their public URL.
type AvatarStore interface {
	Upload(ctx context.Context, userID, contentType string, data []byte) (string, error)
}
