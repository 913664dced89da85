package auth

import "github.com/rollcall/apiserver/types"

// CanAuthenticate reports whether user may sign in given its account state.
// It does not look at credentials.
func CanAuthenticate(user types.User) error {
	if user.Locked {
		return ErrAccountLocked
	}
	if !user.Enabled {
		return ErrAccountDisabled
	}
	return nil
}
