// Package validation provides input validation for source API requests.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validation error types for specific error handling.
var (
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrTooLong       = errors.New("value exceeds maximum length")
	ErrInvalidFormat = errors.New("invalid format")
	ErrScheme        = errors.New("url scheme not allowed")
)

// Constraints for validation.
const (
	MaxNameLength = 255
	MaxSlugLength = 50
	MaxURLLength  = 2048
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// FieldError provides detailed validation error information for one field.
type FieldError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, truncate(e.Value, 50), e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, truncate(e.Value, 50), e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidateName validates a display name.
// It checks for:
// - Non-empty (after trimming whitespace)
// - Not exceeding maximum length
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &FieldError{Field: "name", Value: name, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(name) > MaxNameLength {
		return &FieldError{
			Field:  "name",
			Value:  name,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxNameLength),
			Err:    ErrTooLong,
		}
	}
	return nil
}

// ValidateSlug validates a URL-safe identifier made of letters, numbers,
// underscores and hyphens.
func ValidateSlug(slug string) error {
	if slug == "" {
		return &FieldError{Field: "slug", Value: slug, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(slug) > MaxSlugLength {
		return &FieldError{
			Field:  "slug",
			Value:  slug,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxSlugLength),
			Err:    ErrTooLong,
		}
	}
	if !slugPattern.MatchString(slug) {
		return &FieldError{
			Field:  "slug",
			Value:  slug,
			Reason: "must contain only letters, numbers, underscores or hyphens",
			Err:    ErrInvalidFormat,
		}
	}
	return nil
}

// ValidateEndpointURL validates an optional provider endpoint. Empty is
// allowed; anything else must be an absolute http(s) URL.
func ValidateEndpointURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxURLLength {
		return &FieldError{Field: field, Value: raw, Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxURLLength), Err: ErrTooLong}
	}
	return httpURL(field, raw)
}

// ValidateIconURL validates the value of an icon set by URL. Empty removes
// the icon; otherwise an absolute http(s) URL or a "fa://" font icon
// reference is required.
func ValidateIconURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "fa://") {
		if len(raw) == len("fa://") {
			return &FieldError{Field: "icon url", Value: raw, Reason: "missing icon name", Err: ErrInvalidFormat}
		}
		return nil
	}
	return httpURL("icon url", raw)
}

func httpURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &FieldError{Field: field, Value: raw, Reason: "not a url", Err: ErrInvalidFormat}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &FieldError{Field: field, Value: raw, Reason: fmt.Sprintf("scheme %q not allowed", u.Scheme), Err: ErrScheme}
	}
	if u.Host == "" {
		return &FieldError{Field: field, Value: raw, Reason: "missing host", Err: ErrInvalidFormat}
	}
	return nil
}

// truncate shortens a string for display in error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
