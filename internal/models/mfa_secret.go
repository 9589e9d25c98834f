package models

import "time"

// MFASecret stores a user's encrypted TOTP secret and hashed backup codes.
type MFASecret struct {
	BaseModel

	UserID          string     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	EncryptedSecret string     `gorm:"not null" json:"-"`
	BackupCodes     string     `gorm:"type:json" json:"-"`
	ConfirmedAt     *time.Time `json:"confirmed_at"`
}
