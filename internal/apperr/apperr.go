// ABOUTME: Typed error taxonomy shared by all mesh services
// ABOUTME: Carries a stable code so transports can map failures uniformly

package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an operation failure.
type Code string

const (
	// CodeValidation indicates a missing or malformed required field.
	// Never retried automatically; the caller must fix the input.
	CodeValidation Code = "validation"

	// CodeNotFound indicates a referenced entity id does not exist.
	CodeNotFound Code = "not_found"

	// CodeConflict indicates a uniqueness violation, e.g. duplicate membership.
	CodeConflict Code = "conflict"

	// CodeForbidden indicates the caller lacks the required group membership
	// or ownership for the action.
	CodeForbidden Code = "forbidden"

	// CodeUnauthorized indicates a bad or missing credential.
	CodeUnauthorized Code = "unauthorized"

	// CodeInternal indicates a storage or unexpected failure.
	CodeInternal Code = "internal"
)

// Retryable reports whether a caller may retry the same request with backoff.
// Only internal failures qualify; everything else needs a changed request or
// re-fetched state first.
func (c Code) Retryable() bool {
	return c == CodeInternal
}

// Error is a failure with a taxonomy code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause. A nil cause returns nil.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the taxonomy code from err. Errors that are not (or do not
// wrap) an *Error are classified as internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
