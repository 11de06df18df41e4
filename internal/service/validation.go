package service

import (
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"

	apperrors "github.com/accountdesk/accountdesk/internal/errors"
)

// validationError converts ozzo-validation field errors to a Validation
// AppError naming the first offending field in a stable order.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, capitalize(err.Error()))
	}
	fields := make([]string, 0, len(fieldErrs))
	for field, fe := range fieldErrs {
		if fe != nil {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	if len(fields) == 0 {
		return nil
	}
	first := fields[0]
	msg := fieldErrs[first].Error()
	var nested validation.Errors
	if errors.As(fieldErrs[first], &nested) {
		for _, v := range nested {
			if v != nil {
				msg = v.Error()
				break
			}
		}
	}
	return &apperrors.AppError{
		Code:    apperrors.ErrCodeValidation,
		Message: capitalize(msg),
		Field:   first,
		Cause:   err,
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
