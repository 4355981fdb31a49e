// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an account already exists for an email.
// Repositories return it (wrapped) when the uniqueness constraint rejects an insert.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrUnauthenticated is returned for missing, malformed, expired, or revoked session tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError names the first signup field that failed validation.
// Its message is safe to show to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidField(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Kind is the caller-facing category of an auth error.
type Kind string

// Error kinds.
const (
	KindValidation         Kind = "validation_error"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInternal           Kind = "internal_error"
)

// KindOf classifies err. Anything not produced as a typed outcome by the
// service is KindInternal.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrDuplicateEmail):
		return KindDuplicateEmail
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	default:
		return KindInternal
	}
}

// PublicMessage returns the message that may be shown to the caller for err.
func PublicMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	switch KindOf(err) {
	case KindDuplicateEmail:
		return ErrDuplicateEmail.Error()
	case KindInvalidCredentials:
		return ErrInvalidCredentials.Error()
	case KindUnauthenticated:
		return ErrUnauthenticated.Error()
	default:
		return "internal server error"
	}
}
