package auth

import "errors"

// Credential and account-state errors. Callers outside this process see
// all of them as a single "unauthenticated" result.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// Session token errors.
var (
	ErrMalformed        = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
)

// Registration and verification errors.
var (
	ErrForbidden           = errors.New("forbidden")
	ErrDuplicateIdentity   = errors.New("username or email already registered")
	ErrInvalidToken        = errors.New("invalid verification token")
	ErrAlreadyVerified     = errors.New("account already verified")
	ErrVerificationExpired = errors.New("verification token expired")
	ErrEmptyPassword       = errors.New("password must not be empty")
)

// IsUnauthenticated reports whether err belongs to the family that is
// collapsed to a uniform "unauthenticated" response at the boundary.
func IsUnauthenticated(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrAccountLocked,
		ErrAccountDisabled,
		ErrUnauthenticated,
		ErrMalformed,
		ErrInvalidSignature,
		ErrExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
