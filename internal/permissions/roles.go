package permissions

import (
	"strings"

	"github.com/repfit/repfit/internal/models"
)

// RolePermissions is the static role-to-permission table consulted for every
// authorization check. Owners bypass the table entirely.
var RolePermissions = map[string][]string{
	models.RoleManager: {
		"gym.view", "gym.manage",
		"member.view", "member.create", "member.update", "member.delete",
		"staff.view", "staff.create", "staff.update", "staff.delete",
		"attendance.view", "attendance.record", "attendance.edit",
		"billing.view",
		"audit.view",
	},
	models.RoleStaff: {
		"gym.view",
		"member.view", "member.create", "member.update",
		"staff.view",
		"attendance.view", "attendance.record", "attendance.edit",
	},
	models.RoleTrainer: {
		"gym.view",
		"member.view",
		"attendance.view", "attendance.record",
	},
	models.RoleMember: {},
}

// RoleGrants returns the expanded permission set for a role, including
// implied permissions. Owners receive every registered permission.
func RoleGrants(role string) (map[string]struct{}, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == models.RoleOwner {
		all := make(map[string]struct{})
		for _, id := range AllIDs() {
			all[id] = struct{}{}
		}
		return all, nil
	}
	return expandImplied(RolePermissions[role])
}

func expandImplied(ids []string) (map[string]struct{}, error) {
	perms := make(map[string]struct{})

	var visit func(string) error
	visit = func(id string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil
		}
		if _, exists := perms[id]; exists {
			return nil
		}

		def, ok := Get(id)
		if !ok {
			return ErrUnknownPermission
		}

		perms[id] = struct{}{}
		for _, implied := range def.Implies {
			if err := visit(implied); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	return perms, nil
}
