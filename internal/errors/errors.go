package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeCredential indicates the identity provider rejected the credentials.
	ErrCodeCredential ErrorCode = "credential"
	// ErrCodeUnauthenticated indicates the action needs a signed-in identity.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodePermission indicates the signed-in identity may not perform the action.
	ErrCodePermission ErrorCode = "permission"
	// ErrCodeNetwork indicates a remote service could not be reached or failed.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeBusy indicates the same action is already in flight.
	ErrCodeBusy ErrorCode = "busy"
	// ErrCodeRateLimited indicates the caller must wait before retrying.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeUnsupported indicates the configured provider cannot perform the action.
	ErrCodeUnsupported ErrorCode = "unsupported"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled, including a declined confirmation.
	ErrCodeCanceled ErrorCode = "canceled"
)

// GenericMessage is shown for failures that carry no user-facing message.
const GenericMessage = "Something went wrong. Please try again."

// Credential failure reasons carried in AppError.Field.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonUnknownAccount     = "unknown_account"
	ReasonUnverified         = "unverified"
	ReasonAccountExists      = "account_exists"
	ReasonWeakPassword       = "weak_password"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is safe to show to the user
	Message string
	// Cause is the underlying error (optional)
	Cause error
	// Field names the offending input for validation errors, or the reason for credential errors
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Credential creates a credential error tagged with a reason.
func Credential(reason, message string) *AppError {
	return &AppError{Code: ErrCodeCredential, Message: message, Field: reason}
}

// Unauthenticated creates an error for actions that need a session.
func Unauthenticated(message string) *AppError { return New(ErrCodeUnauthenticated, message) }

// Permission creates a new Permission error.
func Permission(message string) *AppError { return New(ErrCodePermission, message) }

// Busy creates an error for a rejected concurrent submission.
func Busy(message string) *AppError { return New(ErrCodeBusy, message) }

// RateLimited creates a new RateLimited error.
func RateLimited(message string) *AppError { return New(ErrCodeRateLimited, message) }

// Unsupported creates a new Unsupported error.
func Unsupported(message string) *AppError { return New(ErrCodeUnsupported, message) }

// Internal creates a new Internal error.
func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// Canceled creates a new Canceled error.
func Canceled(message string) *AppError { return New(ErrCodeCanceled, message) }

// Network wraps a transport or upstream failure.
func Network(err error, message string) *AppError { return Wrap(err, ErrCodeNetwork, message) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Normalize guarantees err is an AppError. Context errors become timeout or
// canceled errors and anything else unknown becomes an internal error with
// GenericMessage, so raw causes never reach the user.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	default:
		return Wrap(err, ErrCodeInternal, GenericMessage)
	}
}

// UserMessage returns the message safe to display for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return GenericMessage
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsCredential checks if an error is a Credential error.
func IsCredential(err error) bool { return isCode(err, ErrCodeCredential) }

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool { return isCode(err, ErrCodeUnauthenticated) }

// IsPermission checks if an error is a Permission error.
func IsPermission(err error) bool { return isCode(err, ErrCodePermission) }

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool { return isCode(err, ErrCodeNetwork) }

// IsBusy checks if an error is a Busy error.
func IsBusy(err error) bool { return isCode(err, ErrCodeBusy) }

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool { return isCode(err, ErrCodeRateLimited) }

// IsUnsupported checks if an error is an Unsupported error.
func IsUnsupported(err error) bool { return isCode(err, ErrCodeUnsupported) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
