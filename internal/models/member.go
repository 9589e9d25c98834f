package models

import "time"

// Member is a gym-level membership record. Members may optionally be linked to
// a platform user account for portal access and self check-in; unlinked
// members exist purely as front-desk records.
type Member struct {
	BaseModel

	GymID     string  `gorm:"type:uuid;not null;index" json:"gym_id"`
	UserID    *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	FirstName string  `gorm:"not null" json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `gorm:"index" json:"email"`
	Phone     string  `json:"phone"`
	Notes     string  `json:"notes"`
	IsActive  bool    `gorm:"default:true" json:"is_active"`

	JoinedAt time.Time `json:"joined_at"`

	Gym  *Gym  `gorm:"foreignKey:GymID" json:"gym,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
