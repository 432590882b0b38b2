package service

import (
	"errors"
	"fmt"
)

// ErrorKind is the complete set of outcomes a public operation can fail
// with. The kinds are coarse on purpose and must not grow reason codes.
type ErrorKind string

const (
	KindInvalidInput          ErrorKind = "INVALID_INPUT"
	KindDuplicateEmail        ErrorKind = "DUPLICATE_EMAIL"
	KindInvalidCredentials    ErrorKind = "INVALID_CREDENTIALS"
	KindTokenInvalidOrExpired ErrorKind = "TOKEN_INVALID_OR_EXPIRED"
	KindDeliveryError         ErrorKind = "DELIVERY_ERROR"
	KindInternal              ErrorKind = "INTERNAL"
)

// Error carries a Kind for callers and the underlying cause for logs.
// Fields is only populated for INVALID_INPUT.
type Error struct {
	Kind   ErrorKind
	Fields map[string]string
	cause  error
}

var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrDuplicateEmail        = &Error{Kind: KindDuplicateEmail}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrTokenInvalidOrExpired = &Error{Kind: KindTokenInvalidOrExpired}
	ErrDeliveryFailed        = &Error{Kind: KindDeliveryError}
	ErrInternal              = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInternal)
// holds regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func internalError(cause error) *Error {
	return newError(KindInternal, cause)
}

func invalidInput(fields map[string]string) *Error {
	return &Error{Kind: KindInvalidInput, Fields: fields}
}

// KindOf reports the taxonomy kind of err. Anything that is not an *Error
// is INTERNAL.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
