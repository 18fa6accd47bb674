package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrRefreshMissing     = errors.New("auth: refresh token missing")
	ErrRefreshRevoked     = errors.New("auth: refresh token revoked")
	ErrUserNotFound       = errors.New("auth: user not found")

	ErrAuthorizationDenied = errors.New("auth: authorization denied")

	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("resource conflict")

	// ErrStaleWrite is returned by UserStore.SaveUser when the stored version moved on.
	ErrStaleWrite = errors.New("auth: stale write")
)

// DeniedError carries the action a principal was refused.
type DeniedError struct {
	Action Action
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthorizationDenied, e.Action)
}

func (e *DeniedError) Unwrap() error { return ErrAuthorizationDenied }

// Denied builds a DeniedError for action.
func Denied(action Action) error {
	return &DeniedError{Action: action}
}

// IsAuthFailure reports whether err should be presented as a uniform authentication failure.
func IsAuthFailure(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrRefreshMissing),
		errors.Is(err, ErrRefreshRevoked),
		errors.Is(err, ErrUserNotFound):
		return true
	}
	return false
}
