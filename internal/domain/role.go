package domain

import "fmt"

// Role is a chat-registered user's authorization tier.
type Role string

const (
	RoleUser  Role = "user"
	RoleBasic Role = "basic"
	RoleAdmin Role = "admin"
)

// Permission is the tier a command requires.
type Permission string

const (
	PermissionPublic Permission = "public"
	PermissionBasic  Permission = "basic"
	PermissionAdmin  Permission = "admin"
)

var roleRanks = map[Role]int{
	RoleUser:  0,
	RoleBasic: 1,
	RoleAdmin: 2,
}

var permissionRanks = map[Permission]int{
	PermissionPublic: 0,
	PermissionBasic:  1,
	PermissionAdmin:  2,
}

// Rank returns the role's position in the USER < BASIC < ADMIN order,
// or -1 for an unrecognized value.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Display returns the human-facing name used in help output.
func (r Role) Display() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleBasic:
		return "Basic"
	case RoleAdmin:
		return "Admin"
	}
	return string(r)
}

// ParseRole normalizes a stored or user-supplied role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Rank returns the permission's position in the PUBLIC < BASIC < ADMIN
// order, or -1 for an unrecognized value.
func (p Permission) Rank() int {
	if rank, ok := permissionRanks[p]; ok {
		return rank
	}
	return -1
}

// Satisfies reports whether a caller holding role may run a command that
// requires perm. A nil role (caller not registered on the platform) only
// satisfies PUBLIC; otherwise the role's rank must meet the permission's.
func Satisfies(role *Role, perm Permission) bool {
	if role == nil {
		return perm == PermissionPublic
	}
	return role.Rank() >= perm.Rank()
}
