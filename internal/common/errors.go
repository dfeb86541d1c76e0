// Package common defines shared constants and sentinel errors used across
// the client and server layers of comicsync. Callers should use errors.Is to
// match the sentinels and errors.As to extract a *FieldError.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound  = errors.New("not found")
	ErrMissingID = errors.New("identity key required")

	// Schema/format errors.
	ErrUnknownKind  = errors.New("unknown entity kind")
	ErrMalformedRow = errors.New("malformed row")
	ErrInvalidToken = errors.New("invalid write token")

	// Validation failures reported by the server for a pushed row. They are
	// never retried automatically.
	ErrValidation = errors.New("validation failed")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable marks a network-class failure: the remote could not be
	// reached or did not answer in time.
	ErrUnavailable = errors.New("server unavailable")

	// ErrRetryUnavailable is returned when a deferred retry cannot be registered.
	ErrRetryUnavailable = errors.New("deferred retry unavailable")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

// FieldError is a field-level rejection. It unwraps to ErrValidation so that
// callers can branch on the class and still show the reason next to the field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// NewFieldError returns a *FieldError for field.
func NewFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// IsRetriable reports whether err belongs to the network class, i.e. whether
// sending the same request again later may succeed without user action.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
