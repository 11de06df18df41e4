package httpx

import (
	"net/http"

	"github.com/accountdesk/accountdesk/internal/service"
)

// NoticeHandlers exposes the notice board to pages.
type NoticeHandlers struct {
	Board *service.NoticeBoard
}

// Get handles GET /notices. It answers 204 when there is nothing to show.
func (h *NoticeHandlers) Get(w http.ResponseWriter, _ *http.Request) {
	n, ok := h.Board.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// Dismiss handles DELETE /notices.
func (h *NoticeHandlers) Dismiss(w http.ResponseWriter, _ *http.Request) {
	h.Board.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}
