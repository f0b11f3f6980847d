package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets errors by how the caller should react to them.
type Kind int

const (
	// KindValidation marks caller-correctable input errors.
	KindValidation Kind = iota
	// KindStateConflict marks races and stale views; the caller should
	// refresh and retry the higher-level workflow.
	KindStateConflict
	// KindResource marks recoverable resource shortfalls such as an
	// insufficient balance.
	KindResource
	// KindNotFound marks lookups for entities that do not exist.
	KindNotFound
	// KindInternal marks invariant violations. These indicate a bug, not
	// bad input, and always abort the surrounding transaction.
	KindInternal
)

// Error codes reported to callers.
const (
	CodeInvalidTerms      = "INVALID_TERMS"
	CodeInvalidPrice      = "INVALID_PRICE"
	CodeOverfundAttempt   = "OVERFUND_ATTEMPT"
	CodeAlreadyConverted  = "ALREADY_CONVERTED"
	CodeAlreadyListed     = "ALREADY_LISTED"
	CodeListingNotActive  = "LISTING_NOT_ACTIVE"
	CodeNotOwner          = "NOT_OWNER"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

// Error is the error type returned across the service boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// JSON returns the wire representation used by HTTP handlers.
func (e *Error) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.Message,
		},
	}
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidTerms(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeInvalidTerms, format, args...)
}

func InvalidPrice(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeInvalidPrice, format, args...)
}

func OverfundAttempt(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeOverfundAttempt, format, args...)
}

func AlreadyConverted(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, CodeAlreadyConverted, format, args...)
}

func AlreadyListed(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, CodeAlreadyListed, format, args...)
}

func ListingNotActive(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, CodeListingNotActive, format, args...)
}

func NotOwner(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, CodeNotOwner, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, CodeInvalidState, format, args...)
}

func InsufficientFunds(format string, args ...interface{}) *Error {
	return newError(KindResource, CodeInsufficientFunds, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, CodeNotFound, format, args...)
}

// Internal wraps an invariant violation or unexpected failure.
func Internal(err error, format string, args ...interface{}) *Error {
	e := newError(KindInternal, CodeInternal, format, args...)
	e.Err = err
	return e
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error kind to its HTTP status.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindResource:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
