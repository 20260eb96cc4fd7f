// Package apperr defines the error taxonomy surfaced by the deal conversation core.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the class of an error.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUpstream          Code = "UPSTREAM"
	CodeForbidden         Code = "FORBIDDEN"
)

// Error is a classified error. Errors compare equal under errors.Is when
// their codes match, so callers can test against the sentinels below.
type Error struct {
	Code    Code
	Message string
	Err     error
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

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrUpstream          = &Error{Code: CodeUpstream}
	ErrForbidden         = &Error{Code: CodeForbidden}
)

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports an illegal status change.
func InvalidTransition(from, to string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

// NotFound reports an unknown reference.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports that the acting user lacks a permission.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failure from an injected collaborator. Classified errors
// pass through unchanged so a collaborator's NotFound stays a NotFound.
func Upstream(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Code: CodeUpstream, Message: collaborator + " failed", Err: err}
}

// CodeOf returns the code of err, or "" if it is unclassified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
