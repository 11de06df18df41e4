//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nyaruka/phonenumbers"
)

const (
	maxFullNameLen = 120
	maxBioLen      = 500
	maxEmailLen    = 254
	maxPasswordLen = 128

	// DefaultMinPasswordLength is the provider's default minimum.
	DefaultMinPasswordLength = 6
	// DefaultPhoneRegion is used when a phone number has no country prefix.
	DefaultPhoneRegion = "US"
)

var (
	// ErrPasswordMismatch is returned when the confirmation does not match.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrInvalidPhone is returned for numbers libphonenumber cannot validate.
	ErrInvalidPhone = errors.New("phone number is not valid")
)

var (
	textPolicy  = bluemonday.StrictPolicy()
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// SanitizeText strips markup and control characters from a free-text field and trims it.
func SanitizeText(s string) string {
	cleaned := html.UnescapeString(textPolicy.Sanitize(s))
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.TrimSpace(cleaned)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses raw into E.164 form. Blank input stays blank.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidateCredentials checks the sign-in form.
func ValidateCredentials(email, password string) error {
	return validation.Errors{
		"email":    validation.Validate(email, validation.Required.Error("Email is required"), is.Email.Error("Enter a valid email address")),
		"password": validation.Validate(password, validation.Required.Error("Password is required")),
	}.Filter()
}

// ValidateEmail checks a single email address, e.g. for password reset.
func ValidateEmail(email string) error {
	return validation.Errors{
		"email": validation.Validate(email,
			validation.Required.Error("Email is required"),
			validation.Length(3, maxEmailLen),
			is.Email.Error("Enter a valid email address"),
		),
	}.Filter()
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string, minLen int) error {
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	return validation.Errors{
		"password": validation.Validate(password,
			validation.Required.Error("Password is required"),
			validation.RuneLength(minLen, maxPasswordLen).Error(passwordLengthMessage(minLen)),
		),
		"confirm_password": validation.Validate(confirm,
			validation.Required.Error("Please confirm your password"),
			validation.By(equals(password)),
		),
	}.Filter()
}

// Normalize trims the registration form in place.
func (r *RegistrationInput) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.FullName = SanitizeText(r.FullName)
}

// Validate checks the registration form.
func (r RegistrationInput) Validate(minLen int) error {
	errs := validation.Errors{
		"full_name": validation.Validate(r.FullName,
			validation.Required.Error("Full name is required"),
			validation.RuneLength(1, maxFullNameLen),
		),
		"email": ValidateEmail(r.Email),
	}
	if err := ValidatePassword(r.Password, r.ConfirmPassword, minLen); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			for k, v := range fieldErrs {
				errs[k] = v
			}
		}
	}
	if emailErrs, ok := errs["email"].(validation.Errors); ok {
		errs["email"] = emailErrs["email"]
	}
	return errs.Filter()
}

// Normalize sanitizes the editable fields in place.
func (r *UpdateProfileRequest) Normalize(region string) error {
	sanitizeOptional(r.FullName)
	sanitizeOptional(r.Bio)
	return normalizePhoneOptional(r.Phone, region)
}

// Validate checks a self-service edit.
func (r UpdateProfileRequest) Validate() error {
	return validateEditable(r.FullName, r.Phone, r.Bio)
}

// Changes converts the request to a store update.
func (r UpdateProfileRequest) Changes() ProfileChanges {
	return ProfileChanges{FullName: r.FullName, Phone: r.Phone, Bio: r.Bio}
}

// Normalize sanitizes the editable fields in place.
func (r *AdminUpdateProfileRequest) Normalize(region string) error {
	sanitizeOptional(r.FullName)
	sanitizeOptional(r.Bio)
	return normalizePhoneOptional(r.Phone, region)
}

// Validate checks an administrative edit.
func (r AdminUpdateProfileRequest) Validate() error {
	return validateEditable(r.FullName, r.Phone, r.Bio)
}

// Changes converts the request to a store update.
func (r AdminUpdateProfileRequest) Changes() ProfileChanges {
	return ProfileChanges{FullName: r.FullName, Phone: r.Phone, Bio: r.Bio, IsAdmin: r.IsAdmin}
}

func validateEditable(fullName, phone, bio *string) error {
	errs := validation.Errors{}
	if fullName != nil {
		errs["full_name"] = validation.Validate(*fullName, validation.RuneLength(0, maxFullNameLen))
	}
	if bio != nil {
		errs["bio"] = validation.Validate(*bio, validation.RuneLength(0, maxBioLen))
	}
	if phone != nil && *phone != "" {
		errs["phone"] = validation.Validate(*phone, validation.Match(e164Pattern).Error("Enter a valid phone number"))
	}
	return errs.Filter()
}

func sanitizeOptional(p *string) {
	if p != nil {
		*p = SanitizeText(*p)
	}
}

func normalizePhoneOptional(p *string, region string) error {
	if p == nil {
		return nil
	}
	normalized, err := NormalizePhone(*p, region)
	if err != nil {
		return validation.Errors{"phone": errors.New("Enter a valid phone number")}
	}
	*p = normalized
	return nil
}

func equals(want string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != want {
			return ErrPasswordMismatch
		}
		return nil
	}
}

func passwordLengthMessage(minLen int) string {
	return "Password must be at least " + strconv.Itoa(minLen) + " characters"
}
