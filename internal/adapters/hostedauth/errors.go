package hostedauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// errorBody covers the error shapes the service returns: OAuth-style
// (error, error_description), API-style (code, msg) and message-only.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if s, ok := b.Code.(string); ok && s != "" {
		return s
	}
	return b.Error
}

func (b errorBody) message() string {
	for _, m := range []string{b.Msg, b.ErrorDescription, b.Message} {
		if m != "" {
			return m
		}
	}
	return ""
}

// classify turns a non-2xx response into an AppError.
func classify(status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	code := strings.ToLower(body.code())
	msg := body.message()
	cause := fmt.Errorf("hosted auth: status %d: %s %s", status, code, msg)

	switch {
	case code == "email_not_confirmed" || strings.Contains(strings.ToLower(msg), "email not confirmed"):
		return apperrors.Credential(apperrors.ReasonUnverified, "Please verify your email before signing in.")
	case code == "user_already_exists" || code == "email_exists" ||
		strings.Contains(strings.ToLower(msg), "already registered"):
		return apperrors.Credential(apperrors.ReasonAccountExists, "An account with this email already exists.")
	case code == "weak_password":
		return apperrors.Credential(apperrors.ReasonWeakPassword, orDefault(msg, "Password is too weak."))
	case code == "user_not_found":
		return apperrors.Credential(apperrors.ReasonUnknownAccount, "No account found with this email address.")
	case code == "invalid_grant" || code == "invalid_credentials" || code == "refresh_token_not_found":
		return apperrors.Credential(apperrors.ReasonInvalidCredentials, orDefault(msg, "Invalid login credentials"))
	case status == http.StatusTooManyRequests || code == "over_request_rate_limit" || code == "over_email_send_rate_limit":
		return apperrors.RateLimited("Too many attempts. Please wait a moment and try again.")
	case status >= 500:
		return apperrors.Network(cause, unreachableMessage)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Wrap(cause, apperrors.ErrCodeUnauthenticated, "Your session has expired. Please sign in again.")
	default:
		return apperrors.Wrap(cause, apperrors.ErrCodeValidation, orDefault(msg, apperrors.GenericMessage))
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
