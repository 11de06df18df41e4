package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func strPtr(s string) *string { return &s }

func TestProfileService_LoadProfile(t *testing.T) {
	t.Run("own profile", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		p, err := h.profile.LoadProfile(context.Background(), userID)

		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Paul Plain", p.FullName)
		assert.Equal(t, p, h.profile.Cached())
	})

	t.Run("missing profile is not an error", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		sess := h.provider.Session("user-ghost", "ghost@example.com")
		_, err := h.sessions.Establish(context.Background(), sess.Identity())
		require.NoError(t, err)

		p, err := h.profile.LoadProfile(context.Background(), "user-ghost")

		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("other profile needs admin", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		_, err := h.profile.LoadProfile(context.Background(), adminID)

		require.Error(t, err)
		assert.True(t, apperrors.IsPermission(err))
	})

	t.Run("admin loads anyone without caching", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, adminEmail)

		p, err := h.profile.LoadProfile(context.Background(), userID)

		require.NoError(t, err)
		assert.Equal(t, userID, p.ID)
		assert.Nil(t, h.profile.Cached())
	})

	t.Run("signed out", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)

		_, err := h.profile.LoadProfile(context.Background(), userID)

		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthenticated(err))
	})

	t.Run("store failure", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)
		h.profiles.GetErr = errors.New("connection refused")

		_, err := h.profile.LoadProfile(context.Background(), userID)

		require.Error(t, err)
		assert.Equal(t, apperrors.GenericMessage, apperrors.UserMessage(err))
	})
}

func TestProfileService_CacheFollowsIdentity(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	_, err := h.profile.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.profile.Cached())

	h.signIn(t, adminEmail)
	assert.Nil(t, h.profile.Cached(), "previous user's profile is not served")

	p, err := h.profile.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, adminID, p.ID)
}

func TestProfileService_UpdateProfile(t *testing.T) {
	t.Run("sanitizes and saves", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)
		before, _ := h.profiles.Peek(userID)

		p, err := h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{
			FullName: strPtr("  Paul <script>alert(1)</script>Plainer "),
			Phone:    strPtr("(650) 253-0000"),
			Bio:      strPtr("Hello\x07 world"),
		})

		require.NoError(t, err)
		assert.Equal(t, "Paul Plainer", p.FullName)
		assert.Equal(t, "+16502530000", p.Phone)
		assert.Equal(t, "Hello world", p.Bio)
		assert.True(t, p.UpdatedAt.After(before.UpdatedAt))
		assert.Equal(t, p, h.profile.Cached())

		notice, ok := h.notices.Current()
		require.True(t, ok)
		assert.Equal(t, "Profile updated successfully!", notice.Message)
	})

	t.Run("cannot change admin flag", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		_, err := h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{FullName: strPtr("Paul")})
		require.NoError(t, err)

		stored, _ := h.profiles.Peek(userID)
		assert.False(t, stored.IsAdmin)
	})

	t.Run("only own profile", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, adminEmail)

		_, err := h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{FullName: strPtr("X")})

		require.Error(t, err)
		assert.True(t, apperrors.IsPermission(err))
		assert.Zero(t, h.profiles.UpdateCalls.Load())
	})

	t.Run("invalid phone", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		_, err := h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{Phone: strPtr("12")})

		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "phone", apperrors.GetField(err))
		assert.Zero(t, h.profiles.UpdateCalls.Load())
	})

	t.Run("store failure keeps the cache", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)
		original, err := h.profile.Current(context.Background())
		require.NoError(t, err)
		h.profiles.UpdateErr = errors.New("timeout")

		_, err = h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{FullName: strPtr("New")})

		require.Error(t, err)
		assert.Equal(t, original, h.profile.Cached())
		notice, ok := h.notices.Current()
		require.True(t, ok)
		assert.Equal(t, NoticeError, notice.Kind)
	})
}

func TestProfileService_SetAvatar(t *testing.T) {
	t.Run("uploads and records the url", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		p, err := h.profile.SetAvatar(context.Background(), "", pngPixel)

		require.NoError(t, err)
		assert.Equal(t, "https://avatars.test/"+userID, p.AvatarURL)
		assert.Equal(t, pngPixel, h.avatars.Uploads[userID])
	})

	t.Run("rejects other content", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		_, err := h.profile.SetAvatar(context.Background(), "text/plain; charset=utf-8", []byte("hello"))

		require.Error(t, err)
		assert.Equal(t, "avatar", apperrors.GetField(err))
		assert.Empty(t, h.avatars.Uploads)
	})

	t.Run("rejects oversized images", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)

		_, err := h.profile.SetAvatar(context.Background(), "image/png", make([]byte, DefaultMaxAvatarBytes+1))

		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("upload failure", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.signIn(t, userEmail)
		h.avatars.Err = apperrors.Network(errors.New("503"), "Storage is unavailable.")

		_, err := h.profile.SetAvatar(context.Background(), "image/png", pngPixel)

		require.Error(t, err)
		assert.True(t, apperrors.IsNetwork(err))
		assert.Zero(t, h.profiles.UpdateCalls.Load())
	})
}

func TestProfileService_Drafts(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	first, err := h.profile.BeginEdit(context.Background())
	require.NoError(t, err)
	second, err := h.profile.BeginEdit(context.Background())
	require.NoError(t, err)

	first.FullName = "From first"
	second.FullName = "From second"

	_, err = h.profile.SaveDraft(context.Background(), first)
	require.NoError(t, err)
	p, err := h.profile.SaveDraft(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "From second", p.FullName, "last writer wins")

	third, err := h.profile.BeginEdit(context.Background())
	require.NoError(t, err)
	third.FullName = "Discarded"
	current, err := h.profile.CancelDraft(context.Background(), third)
	require.NoError(t, err)
	assert.Equal(t, "From second", current.FullName)

	_, err = h.profile.SaveDraft(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestProfileService_SaveGuard(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	release, err := h.profile.saveGuard.acquire()
	require.NoError(t, err)
	defer release()

	_, err = h.profile.UpdateProfile(context.Background(), userID, model.UpdateProfileRequest{FullName: strPtr("X")})
	require.Error(t, err)
	assert.True(t, apperrors.IsBusy(err))
}

func TestProfileService_SaveCleanDraft(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	draft, err := h.profile.BeginEdit(context.Background())
	require.NoError(t, err)

	p, err := h.profile.SaveDraft(context.Background(), draft)

	require.NoError(t, err)
	assert.Equal(t, "Paul Plain", p.FullName)
	assert.Zero(t, h.profiles.UpdateCalls.Load())
}

func TestProfileService_SetAvatarURL(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.signIn(t, userEmail)

	p, err := h.profile.SetAvatarURL(context.Background(), " https://cdn.example.com/me.png ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/me.png", p.AvatarURL)

	_, err = h.profile.SetAvatarURL(context.Background(), "javascript:alert(1)")
	require.Error(t, err)
	assert.Equal(t, "avatar_url", apperrors.GetField(err))

	_, err = h.profile.SetAvatarURL(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}
