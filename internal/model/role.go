package model

import "strings"

// Role is a member's role within an organization.
type Role string

const (
	RoleGuest  Role = "GUEST"
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
	RoleOwner  Role = "OWNER"
)

// RoleRank returns the numeric privilege rank of a role.
// Only relative ordering matters — RoleAtLeast uses >= comparison.
func RoleRank(r Role) int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleGuest:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// NormalizeRole maps an identity-provider role string to a local Role.
// The comparison is case-insensitive and tolerates an "org:" prefix
// (e.g. "org:admin"). Anything unrecognised, including the empty string,
// defaults to MEMBER.
func NormalizeRole(external string) Role {
	s := strings.TrimPrefix(strings.ToLower(external), "org:")
	switch s {
	case "owner":
		return RoleOwner
	case "admin":
		return RoleAdmin
	case "guest":
		return RoleGuest
	default:
		return RoleMember
	}
}
