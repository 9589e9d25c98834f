package models

import "strings"

// Role names assignable within a gym, ordered from most to least privileged.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleTrainer = "trainer"
	RoleMember  = "member"
)

// ValidRole reports whether the supplied string names a known gym role.
func ValidRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleOwner, RoleManager, RoleStaff, RoleTrainer, RoleMember:
		return true
	}
	return false
}

// GymRole assigns a user a single role within a gym. A user holds at most one
// role per gym; the composite unique index backs the accept-invitation
// conflict check.
type GymRole struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_gym_roles_user_gym" json:"user_id"`
	GymID  string `gorm:"type:uuid;not null;uniqueIndex:idx_gym_roles_user_gym;index" json:"gym_id"`
	Role   string `gorm:"not null" json:"role"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Gym  *Gym  `gorm:"foreignKey:GymID" json:"gym,omitempty"`
}
