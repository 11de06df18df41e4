package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/accountdesk/accountdesk/internal/domain/model"
	"github.com/accountdesk/accountdesk/internal/ports"
	"github.com/accountdesk/accountdesk/internal/service"
)

// AdminHandlers serves the user-management console.
type AdminHandlers struct {
	Svc *service.AdminService
}

type profileListResponse struct {
	Profiles []*model.Profile `json:"profiles"`
	Count    int              `json:"count"`
}

// List handles GET /admin/profiles. Without q the listing is reloaded from
// the record store; with q the last loaded listing is filtered locally.
func (h *AdminHandlers) List(w http.ResponseWriter, r *http.Request) {
	var (
		list []*model.Profile
		err  error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		list, err = h.Svc.SearchProfiles(q)
	} else {
		list, err = h.Svc.ListProfiles(r.Context())
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if list == nil {
		list = []*model.Profile{}
	}
	WriteJSON(w, http.StatusOK, profileListResponse{Profiles: list, Count: len(list)})
}

// Stats handles GET /admin/stats.
func (h *AdminHandlers) Stats(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.Svc.Stats()
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Update handles PATCH /admin/profiles/{id}.
func (h *AdminHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.AdminUpdateProfileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.Svc.UpdateProfile(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /admin/profiles/{id}?confirm=true. The confirm
// parameter is the page's answer to the confirmation prompt; anything else
// declines and nothing is deleted. The identity provider account is kept.
func (h *AdminHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	confirmed := parseBoolQuery(r, "confirm", false)
	confirm := ports.ConfirmFunc(func(context.Context, string) (bool, error) { return confirmed, nil })

	if err := h.Svc.DeleteProfile(r.Context(), r.PathValue("id"), confirm); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
