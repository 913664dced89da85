package types

import "time"

// VerificationToken binds a single-use account verification secret to one user.
// Only a keyed hash of the secret is stored.
type VerificationToken struct {
	ID         int        `json:"id" db:"id"`
	UserID     int        `json:"user_id" db:"user_id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
}

// Redeemed reports whether the token has already been used.
func (t VerificationToken) Redeemed() bool {
	return t.RedeemedAt != nil
}
