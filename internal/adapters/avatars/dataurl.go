// Package avatars holds AvatarStore implementations.
package avatars

import (
	"context"
	"encoding/base64"
	"strings"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

var _ ports.AvatarStore = DataURLStore{}

// DefaultMaxBytes keeps inline avatars small enough for a profile row.
const DefaultMaxBytes = 512 << 10

// DataURLStore embeds the image in the profile itself as a base64 data URL,
// so no object storage is needed.
type DataURLStore struct {
	// MaxBytes caps the raw image size. Zero means DefaultMaxBytes.
	MaxBytes int
}

// Upload returns data:<contentType>;base64,<data>.
func (s DataURLStore) Upload(_ context.Context, _ string, contentType string, data []byte) (string, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if len(data) == 0 {
		return "", apperrors.ValidationField("avatar", "Choose an image to upload")
	}
	if len(data) > limit {
		return "", apperrors.ValidationField("avatar", "Image is too large")
	}
	ct := strings.TrimSpace(contentType)
	if !strings.HasPrefix(ct, "image/") {
		return "", apperrors.ValidationField("avatar", "Avatar must be an image")
	}

	var b strings.Builder
	b.Grow(len("data:;base64,") + len(ct) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(ct)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}
