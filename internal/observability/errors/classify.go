// Package errors classifies failures for metric tags and log fields.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// Classify returns a short error type name suitable for tagging metrics and logs.
// Application errors are named by their code ("credential", "network"); for
// internal failures the innermost concrete cause type is used instead
// ("pgconn_pgerror", "url_error") so unexpected errors stay distinguishable.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
		return string(appErr.Code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(t.String())
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
