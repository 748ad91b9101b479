// Package apierr defines the error taxonomy surfaced at the REST boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the fixed taxonomy values from the system's error design.
type Code string

const (
	NotFound           Code = "not_found"
	Conflict           Code = "conflict"
	InvalidArgument    Code = "invalid_argument"
	PreconditionFailed Code = "precondition_failed"
	JobInProgress      Code = "job_in_progress"
	ProviderUnavailable Code = "provider_unavailable"
	Internal           Code = "internal"
)

// httpStatus maps each Code to its REST status.
var httpStatus = map[Code]int{
	NotFound:            http.StatusNotFound,
	Conflict:             http.StatusConflict,
	InvalidArgument:      http.StatusBadRequest,
	PreconditionFailed:   http.StatusConflict,
	JobInProgress:        http.StatusConflict,
	ProviderUnavailable:  http.StatusServiceUnavailable,
	Internal:             http.StatusInternalServerError,
}

// Error is the typed error carried through the engine and serialised at
// the REST boundary as {error:{code,message,details?}}.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause, preserving it
// for errors.Unwrap / errors.Is chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func WithDetails(err *Error, details map[string]any) *Error {
	cp := *err
	cp.Details = details
	return &cp
}

// NotFoundf builds a not_found error.
func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, format, args...)
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) *Error {
	return Newf(Conflict, format, args...)
}

// InvalidArgumentf builds an invalid_argument error.
func InvalidArgumentf(format string, args ...any) *Error {
	return Newf(InvalidArgument, format, args...)
}

// PreconditionFailedf builds a precondition_failed error.
func PreconditionFailedf(format string, args ...any) *Error {
	return Newf(PreconditionFailed, format, args...)
}

// As extracts an *Error from err, if one is present anywhere in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
