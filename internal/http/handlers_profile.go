package httpx

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/service"
)

// maxAvatarBody bounds what is read from an avatar upload before the
// service applies its own size limit.
const maxAvatarBody = 8 << 20

// ProfileHandlers serves the signed-in user's own profile.
type ProfileHandlers struct {
	Svc *service.ProfileService
	// Now is used for derived profile facts. Defaults to time.Now.
	Now func() time.Time
}

type profileResponse struct {
	Profile         *model.Profile `json:"profile"`
	DaysSinceJoined int            `json:"days_since_joined,omitempty"`
	Completeness    int            `json:"completeness,omitempty"`
}

type avatarURLRequest struct {
	URL string `json:"url"`
}

func (h *ProfileHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *ProfileHandlers) respond(w http.ResponseWriter, p *model.Profile) {
	resp := profileResponse{Profile: p}
	if p != nil {
		resp.DaysSinceJoined = p.DaysSinceJoined(h.now())
		resp.Completeness = p.Completeness()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /profile. A missing profile row is a normal empty result.
func (h *ProfileHandlers) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Current(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.respond(w, p)
}

// Update handles PATCH /profile.
func (h *ProfileHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	st, _ := StateFromContext(r.Context())
	p, err := h.Svc.UpdateProfile(r.Context(), st.UserID(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.respond(w, p)
}

// SetAvatar handles PUT /profile/avatar. A JSON body {"url": ...} points the
// avatar at an existing image; any other body is uploaded as the image itself.
func (h *ProfileHandlers) SetAvatar(w http.ResponseWriter, r *http.Request) {
	if mediaType(r) == "application/json" {
		var req avatarURLRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		p, err := h.Svc.SetAvatarURL(r.Context(), req.URL)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		h.respond(w, p)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAppError(w, apperrors.ValidationField("avatar", "Image is too large"))
			return
		}
		WriteAppError(w, apperrors.Validation("Could not read the uploaded image"))
		return
	}
	p, err := h.Svc.SetAvatar(r.Context(), mediaType(r), data)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.respond(w, p)
}
