package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

func TestStatusForCode(t *testing.T) {
	tests := map[apperrors.ErrorCode]int{
		apperrors.ErrCodeNotFound:        http.StatusNotFound,
		apperrors.ErrCodeBusy:            http.StatusConflict,
		apperrors.ErrCodeValidation:      http.StatusBadRequest,
		apperrors.ErrCodeCredential:      http.StatusUnauthorized,
		apperrors.ErrCodePermission:      http.StatusForbidden,
		apperrors.ErrCodeRateLimited:     http.StatusTooManyRequests,
		apperrors.ErrCodeNetwork:         http.StatusBadGateway,
		apperrors.ErrCodeUnsupported:     http.StatusNotImplemented,
		apperrors.ErrCodeCanceled:        http.StatusPreconditionRequired,
		apperrors.ErrCodeInternal:        http.StatusInternalServerError,
		apperrors.ErrorCode("mystery"):   http.StatusInternalServerError,
		apperrors.ErrCodeUnauthenticated: http.StatusUnauthorized,
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusForCode(code), code)
	}
}

func TestWriteAppError_HidesUnclassifiedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, errors.New("pq: connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	assert.Contains(t, rec.Body.String(), `"error":"internal"`)
}

func TestWriteAppError_IncludesField(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.ValidationField("email", "Email is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"validation","message":"Email is required","field":"email"}`, rec.Body.String())
}
