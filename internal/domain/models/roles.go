// internal/domain/models/roles.go
package models

// Role classifies an account and governs what the account may do and
// which profile constraints apply.
type Role string

const (
	// RoleExternal is a community member with no campus affiliation.
	RoleExternal Role = "external"
	// RoleStudent is an enrolled student. Requires a campus ID.
	RoleStudent Role = "student"
	// RoleFaculty is a faculty mentor or advisor. Requires a campus ID.
	RoleFaculty Role = "faculty"
	// RoleAlumn is a graduated former student.
	RoleAlumn Role = "alumn"
	// RoleCoordinator administers the community. Only reachable through
	// the confirmation flow, never through self-service profile edits.
	RoleCoordinator Role = "coordinator"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{RoleExternal, RoleStudent, RoleFaculty, RoleAlumn, RoleCoordinator}

// IsValidRole checks whether a value is one of the fixed roles.
func IsValidRole(value string) bool {
	for _, r := range AllRoles {
		if Role(value) == r {
			return true
		}
	}
	return false
}

// RequiresCampusID reports whether accounts with this role must carry a
// non-empty campus ID (institutional affiliation).
func (r Role) RequiresCampusID() bool {
	return r == RoleStudent || r == RoleFaculty
}

// Label returns a human-readable label for the role.
func (r Role) Label() string {
	switch r {
	case RoleExternal:
		return "External"
	case RoleStudent:
		return "Student"
	case RoleFaculty:
		return "Faculty"
	case RoleAlumn:
		return "Alumn"
	case RoleCoordinator:
		return "Coordinator"
	default:
		return string(r)
	}
}
