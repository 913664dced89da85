package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of authorization categories a user can hold.
// The zero value is not a role; values only come from the constants below
// or from ParseRole.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleTeacher
	RoleStudent
	RoleUser
)

var roleNames = [...]string{
	RoleAdmin:   "ADMIN",
	RoleTeacher: "TEACHER",
	RoleStudent: "STUDENT",
	RoleUser:    "USER",
}

// ErrInvalidRole is matched by every InvalidRoleError.
var ErrInvalidRole = errors.New("invalid role")

// InvalidRoleError reports a role name outside the registry.
type InvalidRoleError struct {
	Value string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role %q: role must be one of: %s", e.Value, strings.Join(RoleNames(), ", "))
}

// Is lets callers match with errors.Is(err, ErrInvalidRole).
func (e *InvalidRoleError) Is(target error) bool {
	return target == ErrInvalidRole
}

// ValidRoles returns the names the caller could have used.
func (e *InvalidRoleError) ValidRoles() []string {
	return RoleNames()
}

// AllRoles returns every role in registry order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleUser}
}

// RoleNames returns the wire names of AllRoles.
func RoleNames() []string {
	roles := AllRoles()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}

// ParseRole converts an untrusted role name into a Role.
// Matching is exact and case-sensitive.
func ParseRole(name string) (Role, error) {
	for _, r := range AllRoles() {
		if roleNames[r] == name {
			return r, nil
		}
	}
	return 0, &InvalidRoleError{Value: name}
}

// IsValidRole reports whether name is a registered role name.
func IsValidRole(name string) bool {
	_, err := ParseRole(name)
	return err == nil
}

// Valid reports whether r is one of the registered roles.
func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleUser
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, &InvalidRoleError{Value: r.String()}
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, &InvalidRoleError{Value: r.String()}
	}
	return roleNames[r], nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}
