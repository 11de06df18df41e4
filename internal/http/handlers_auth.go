package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	"github.com/accountdesk/accountdesk/internal/service"
)

// AuthHandlers exposes the account actions.
type AuthHandlers struct {
	Svc    *service.AuthService
	Logger *slog.Logger
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type changePasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type signUpResponse struct {
	UserID               string           `json:"user_id"`
	ConfirmationRequired bool             `json:"confirmation_required"`
	State                domainauth.State `json:"state"`
	Profile              *model.Profile   `json:"profile,omitempty"`
}

type signUpErrorResponse struct {
	errorBody
	// AccountCreated is set when the provider account exists but the
	// profile write failed; the user can still sign in.
	AccountCreated bool   `json:"account_created"`
	UserID         string `json:"user_id,omitempty"`
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SignIn handles POST /auth/sign-in.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	st, err := h.Svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// SignUp handles POST /auth/sign-up.
func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req model.RegistrationInput
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.SignUp(r.Context(), req)
	if err != nil {
		if res == nil {
			WriteAppError(w, err)
			return
		}
		h.logger().WarnContext(r.Context(), "account created without profile", "user_id", res.UserID)
		status, body := appErrorBody(err)
		WriteJSON(w, status, signUpErrorResponse{errorBody: body, AccountCreated: true, UserID: res.UserID})
		return
	}
	status := http.StatusCreated
	if res.ConfirmationRequired {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, signUpResponse{
		UserID:               res.UserID,
		ConfirmationRequired: res.ConfirmationRequired,
		State:                res.State,
		Profile:              res.Profile,
	})
}

// SignOut handles POST /auth/sign-out. It always ends unauthenticated.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.SignOut(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// PasswordReset handles POST /auth/password-reset.
func (h *AuthHandlers) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.Svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ChangePassword handles POST /auth/password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.Svc.ChangePassword(r.Context(), req.Password, req.ConfirmPassword); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
