// Package apperr is the error taxonomy the HTTP surface maps to statuses.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or malformed request parameter (400).
	ErrValidation = errors.New("invalid request")

	// ErrUnavailable marks an upstream or cache failure (500). Details stay
	// in the wrapped error and never reach the client.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// ValidationError carries the client-facing message naming the violated
// constraint.
type ValidationError struct {
	Param string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(param, format string, args ...any) error {
	return &ValidationError{Param: param, Msg: fmt.Sprintf(format, args...)}
}

// Required is the error for a missing required parameter.
func Required(param string) error {
	return &ValidationError{Param: param, Msg: param + " is required."}
}

func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
