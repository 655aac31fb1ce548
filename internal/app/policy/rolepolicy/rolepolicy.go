// internal/app/policy/rolepolicy/rolepolicy.go
package rolepolicy

import (
	"github.com/dalemusser/campushub/internal/domain/models"
)

// transitions is the static table of role changes a self-service profile
// edit may request. It is an explicit table, not derived from any role
// ordering: some lateral moves are permitted even though they are not
// "upgrades" (student → alumn) while their reverse is not (alumn →
// student). Coordinator does not appear as a target anywhere because the
// role is only granted through the confirmation flow.
var transitions = map[models.Role]map[models.Role]bool{
	models.RoleExternal: {
		models.RoleExternal: true,
		models.RoleStudent:  true, // subject to the affiliation guard below
	},
	models.RoleStudent: {
		models.RoleStudent: true,
		models.RoleAlumn:   true,
	},
	models.RoleFaculty: {
		models.RoleFaculty: true,
	},
	models.RoleAlumn: {
		models.RoleAlumn: true,
	},
	models.RoleCoordinator: {
		models.RoleCoordinator: true,
		models.RoleAlumn:       true,
	},
}

// TableEntry returns the raw table entry for current → requested, with
// no guards applied.
func TableEntry(current, requested models.Role) bool {
	return transitions[current][requested]
}

// CanSwitchTo reports whether a profile edit may change current to
// requested. The table is consulted first; the affiliation guard runs
// after the lookup: an external user with no campus ID can never request
// student, whatever the table says.
func CanSwitchTo(current, requested models.Role, hasCampusID bool) bool {
	if !TableEntry(current, requested) {
		return false
	}
	if requested == models.RoleStudent && current == models.RoleExternal && !hasCampusID {
		return false
	}
	return true
}

// Available returns, for every role, whether the current role may switch
// to it. Used to build the role selector on the profile edit form.
func Available(current models.Role, hasCampusID bool) map[models.Role]bool {
	out := make(map[models.Role]bool, len(models.AllRoles))
	for _, r := range models.AllRoles {
		out[r] = CanSwitchTo(current, r, hasCampusID)
	}
	return out
}
