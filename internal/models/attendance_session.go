package models

import "time"

// Attendance subject kinds.
const (
	SubjectMember = "member"
	SubjectStaff  = "staff"
)

// Check-in methods recorded on sessions.
const (
	MethodManual = "manual"
	MethodPortal = "portal"
	MethodKiosk  = "kiosk"
)

// AttendanceSession records a single visit. A null CheckOutAt marks the
// session as open; at most one open session may exist per subject at a time.
// Sessions are corrected via edits, never hard-deleted.
type AttendanceSession struct {
	BaseModel

	GymID       string  `gorm:"type:uuid;not null;index" json:"gym_id"`
	SubjectType string  `gorm:"not null;index" json:"subject_type"`
	MemberID    *string `gorm:"type:uuid;index" json:"member_id,omitempty"`
	StaffUserID *string `gorm:"type:uuid;index" json:"staff_user_id,omitempty"`

	CheckInAt  time.Time  `gorm:"not null;index" json:"check_in_at"`
	CheckOutAt *time.Time `gorm:"index" json:"check_out_at,omitempty"`
	Method     string     `gorm:"default:manual" json:"method"`
	Notes      string     `json:"notes"`

	Gym    *Gym    `gorm:"foreignKey:GymID" json:"gym,omitempty"`
	Member *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Staff  *User   `gorm:"foreignKey:StaffUserID" json:"staff,omitempty"`
}

// Open reports whether the session has not been checked out yet.
func (s *AttendanceSession) Open() bool {
	return s.CheckOutAt == nil
}

// Duration returns the session length, or zero while the session is open.
func (s *AttendanceSession) Duration() time.Duration {
	if s.CheckOutAt == nil {
		return 0
	}
	return s.CheckOutAt.Sub(s.CheckInAt)
}
