package auth

import (
	"context"
	"slices"

	"github.com/rollcall/apiserver/types"
)

// Principal is the authenticated identity acting within one request.
type Principal struct {
	Username string
	Roles    []types.Role
}

// Authenticated reports whether p represents a signed-in user.
func (p Principal) Authenticated() bool {
	return p.Username != ""
}

// HasRole reports whether p holds role.
func (p Principal) HasRole(role types.Role) bool {
	return slices.Contains(p.Roles, role)
}

// RoleNames returns the wire names of p's roles.
func (p Principal) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.String())
	}
	return names
}

type principalKey struct{}

// WithPrincipal returns a child context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || !p.Authenticated() {
		return Principal{}, false
	}
	return p, true
}

// Authorize returns nil when p holds at least one of required. With no
// required roles any authenticated principal passes.
func Authorize(p Principal, required ...types.Role) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if p.HasRole(role) {
			return nil
		}
	}
	return ErrForbidden
}
