// Package cverr defines stable error categories shared across the
// conveyor client. Callers switch on a Code instead of matching error
// strings or backend-specific status values.
package cverr

import (
	"errors"
	"fmt"
)

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeTransient    Code = "transient"
	CodePermanent    Code = "permanent"
	CodeTimeout      Code = "timeout"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
)

// Error is a value type that carries a Code plus the underlying error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// Newf wraps a freshly formatted error with the provided code.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// IsCode helps callers compare codes without type assertions. It walks the
// wrap chain, so a cverr.Error buried under fmt.Errorf %w still matches.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the Code from an error chain, or CodeUnknown when none
// of the wrapped errors carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Retryable reports whether an error is worth retrying with backoff.
func Retryable(err error) bool {
	return IsCode(err, CodeTransient)
}
