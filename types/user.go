package types

import "time"

// User represents a registrable identity in the system.
// It contains credentials, profile fields, role, and account state.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name of the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// FirstName and LastName are profile fields; they play no part in authentication.
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// DateOfBirth is optional.
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`

	// Role is the single authorization category held by the user.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Locked is true until the user redeems their verification token.
	Locked bool `json:"locked" db:"locked"`

	// Enabled can be cleared to bar a verified user from signing in.
	Enabled bool `json:"enabled" db:"enabled"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewPendingUser returns a user in the state registration persists:
// locked until verified, enabled.
func NewPendingUser(username, email string, role Role, passwordHash string) User {
	return User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
		Locked:       true,
		Enabled:      true,
	}
}
