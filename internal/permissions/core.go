package permissions

func init() {
	perms := []*Permission{
		{
			ID:          "gym.view",
			Module:      "core",
			Description: "View gym details",
		},
		{
			ID:          "gym.manage",
			Module:      "core",
			DependsOn:   []string{"gym.view"},
			Description: "Update gym settings and status",
		},
		{
			ID:          "member.view",
			Module:      "core",
			Description: "View gym members",
		},
		{
			ID:          "member.create",
			Module:      "core",
			DependsOn:   []string{"member.view"},
			Description: "Register new members",
		},
		{
			ID:          "member.update",
			Module:      "core",
			DependsOn:   []string{"member.view"},
			Description: "Edit member records",
		},
		{
			ID:          "member.delete",
			Module:      "core",
			DependsOn:   []string{"member.view", "member.update"},
			Description: "Deactivate or remove members",
		},
		{
			ID:          "staff.view",
			Module:      "core",
			Description: "View the staff roster and invitations",
		},
		{
			ID:          "staff.create",
			Module:      "core",
			DependsOn:   []string{"staff.view"},
			Description: "Invite new staff members",
		},
		{
			ID:          "staff.update",
			Module:      "core",
			DependsOn:   []string{"staff.view"},
			Description: "Change staff roles and pending invitations",
		},
		{
			ID:          "staff.delete",
			Module:      "core",
			DependsOn:   []string{"staff.view", "staff.update"},
			Description: "Remove staff and revoke invitations",
		},
		{
			ID:          "attendance.view",
			Module:      "core",
			Description: "View attendance sessions",
		},
		{
			ID:          "attendance.record",
			Module:      "core",
			DependsOn:   []string{"attendance.view"},
			Description: "Record check-ins and check-outs on behalf of subjects",
		},
		{
			ID:          "attendance.edit",
			Module:      "core",
			DependsOn:   []string{"attendance.view"},
			Description: "Retroactively correct attendance sessions",
		},
		{
			ID:          "billing.view",
			Module:      "core",
			Description: "View subscription and billing state",
		},
		{
			ID:          "billing.manage",
			Module:      "core",
			DependsOn:   []string{"billing.view"},
			Description: "Change subscription plans",
		},
		{
			ID:          "audit.view",
			Module:      "core",
			Description: "View audit logs",
		},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
