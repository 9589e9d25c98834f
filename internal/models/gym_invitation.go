package models

import (
	"time"

	"gorm.io/datatypes"
)

// Invitation lifecycle states. Accepted, revoked, and expired are terminal.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
	InviteStatusExpired  = "expired"
)

// GymInvitation is a pending role assignment delivered as a bearer-token URL.
// Only the SHA-256 hash of the token is persisted; the plaintext exists
// transiently in memory and in the emailed link.
type GymInvitation struct {
	BaseModel

	GymID     string         `gorm:"type:uuid;not null;index:idx_gym_invitations_gym_email" json:"gym_id"`
	Email     string         `gorm:"not null;index:idx_gym_invitations_gym_email" json:"email"`
	Role      string         `gorm:"not null" json:"role"`
	Status    string         `gorm:"not null;default:pending;index" json:"status"`
	TokenHash string         `gorm:"not null;index" json:"-"`
	ExpiresAt time.Time      `gorm:"index" json:"expires_at"`
	InvitedBy string         `gorm:"type:uuid" json:"invited_by"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`

	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *string    `gorm:"type:uuid" json:"accepted_by,omitempty"`

	Gym *Gym `gorm:"foreignKey:GymID" json:"gym,omitempty"`
}

// Terminal reports whether the invitation can no longer transition.
func (i *GymInvitation) Terminal() bool {
	return i.Status != InviteStatusPending
}
