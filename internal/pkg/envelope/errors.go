// internal/pkg/envelope/errors.go
package envelope

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure for recovery decisions
type Kind string

const (
	KindValidation   Kind = "validation"
	KindTransient    Kind = "transient"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRejected     Kind = "rejected"
)

// Error is the structured failure returned by backend calls and local validation
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Errors  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Errors, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindFromStatus maps an HTTP status code to a failure kind
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// Validation builds a local validation failure
func Validation(message string, errs ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Errors: errs}
}

// Transient wraps a transport-level failure
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsTransient(err error) bool    { return IsKind(err, KindTransient) }
func IsUnauthorized(err error) bool { return IsKind(err, KindUnauthorized) }
func IsNotFound(err error) bool     { return IsKind(err, KindNotFound) }
func IsValidation(err error) bool   { return IsKind(err, KindValidation) }

// UserMessage converts any error into text that is safe to show to a shopper
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case KindValidation, KindRejected, KindConflict:
		if e.Message != "" {
			return e.Message
		}
		if len(e.Errors) > 0 {
			return e.Errors[0]
		}
		return "The request was not accepted."
	case KindUnauthorized:
		return "Your session has expired. Please sign in again."
	case KindNotFound:
		return "The requested item no longer exists."
	default:
		return "We could not reach the store right now. Please try again."
	}
}
