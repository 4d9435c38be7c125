package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication failures. The gateway is the single
// place that maps kinds to HTTP statuses.
type ErrorKind string

// Error kinds.
const (
	// ErrorKindInvalidToken covers absent, malformed, or cryptographically
	// wrong credentials. Safe to return to the caller without detail.
	ErrorKindInvalidToken ErrorKind = "invalid_token"

	// ErrorKindExpired covers credentials past their validity window,
	// distinct from invalid so clients can react differently.
	ErrorKindExpired ErrorKind = "expired"

	// ErrorKindUnknown covers infrastructure or configuration failures.
	// Detail is logged server-side; callers get a generic message.
	ErrorKindUnknown ErrorKind = "unknown"
)

// ErrNoCredentials indicates the request carries none of the credentials a
// validator looks for. It lets the gateway fall through to the next
// configured method or, for optional auth, continue anonymously.
var ErrNoCredentials = errors.New("no credentials provided")

// Error is a classified authentication failure.
type Error struct {
	Kind    ErrorKind
	Method  Method
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s/%s): %s: %v", e.Method, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s/%s): %s", e.Method, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified authentication error.
func NewError(kind ErrorKind, method Method, message string) *Error {
	return &Error{Kind: kind, Method: method, Message: message}
}

// WrapError creates a classified authentication error with a cause.
func WrapError(kind ErrorKind, method Method, message string, cause error) *Error {
	return &Error{Kind: kind, Method: method, Message: message, Cause: cause}
}

// KindOf returns the failure classification of an error. Unclassified errors
// are infrastructure failures.
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	if errors.Is(err, ErrNoCredentials) {
		return ErrorKindInvalidToken
	}
	return ErrorKindUnknown
}
