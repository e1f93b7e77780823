package application

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAuthenticatedUser rejects a mutation attempted without a resolved
	// user, before any optimistic update is applied.
	ErrNoAuthenticatedUser = errors.New("application: no authenticated user")
	// ErrNoPetResolved rejects a mutation attempted without a resolved pet.
	ErrNoPetResolved = errors.New("application: no pet resolved")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// DataFormatError marks a malformed schedule or session payload read from a
// store. It is user-actionable and distinct from generic failures.
type DataFormatError struct {
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *DataFormatError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("malformed treatment data: %s", e.Detail)
}

// Unwrap exposes the underlying cause, when one exists.
func (e *DataFormatError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// StateError is the structured error the pending treatment state carries when
// a load or derivation failed. Message is human-readable; Cause preserves the
// underlying failure for diagnostics.
type StateError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the underlying cause, when one exists.
func (e *StateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
