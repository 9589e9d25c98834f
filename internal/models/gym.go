package models

import "gorm.io/datatypes"

// Gym is the tenant boundary. Every member, invitation, attendance session,
// and subscription belongs to exactly one gym.
type Gym struct {
	BaseModel

	Name         string         `gorm:"not null" json:"name"`
	ContactEmail string         `json:"contact_email"`
	Timezone     string         `gorm:"default:UTC" json:"timezone"`
	Settings     datatypes.JSON `json:"settings"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`

	Roles   []GymRole `gorm:"foreignKey:GymID" json:"-"`
	Members []Member  `gorm:"foreignKey:GymID" json:"-"`
}
