package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/metrics"
)

const (
	minSessionDuration = time.Minute
	maxSessionDuration = 24 * time.Hour
	maxCheckInAge      = 365 * 24 * time.Hour
	staleCheckInAge    = 30 * 24 * time.Hour
	longSessionWarn    = 8 * time.Hour
	significantShift   = time.Hour
)

var (
	// ErrSubjectNotFound indicates the member or staff subject does not exist.
	ErrSubjectNotFound = errors.New("attendance: subject not found")
	// ErrAlreadyCheckedIn indicates the subject already has an open session.
	ErrAlreadyCheckedIn = errors.New("attendance: already checked in")
	// ErrNoOpenSession indicates there is no open session to check out of.
	ErrNoOpenSession = errors.New("attendance: no open session")
	// ErrSessionNotFound indicates the session ID does not exist.
	ErrSessionNotFound = errors.New("attendance: session not found")
	// ErrInvalidEdit indicates an edit violates a hard validation rule.
	ErrInvalidEdit = errors.New("attendance: invalid edit")
	// ErrConfirmRequired indicates the edit changes the record significantly
	// and the caller has not confirmed it.
	ErrConfirmRequired = errors.New("attendance: confirmation required for significant change")
)

// AttendanceEvent describes a session transition published to subscribers.
type AttendanceEvent struct {
	Kind        string     `json:"kind"`
	GymID       string     `json:"gym_id"`
	SessionID   string     `json:"session_id"`
	SubjectType string     `json:"subject_type"`
	MemberID    *string    `json:"member_id,omitempty"`
	StaffUserID *string    `json:"staff_user_id,omitempty"`
	CheckInAt   time.Time  `json:"check_in_at"`
	CheckOutAt  *time.Time `json:"check_out_at,omitempty"`
}

// Attendance event kinds.
const (
	EventCheckIn  = "checkin"
	EventCheckOut = "checkout"
	EventEdit     = "edit"
)

// AttendanceOption customises AttendanceService behaviour.
type AttendanceOption func(*AttendanceService)

// WithAttendanceClock injects a custom clock primarily for testing.
func WithAttendanceClock(clock func() time.Time) AttendanceOption {
	return func(s *AttendanceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithAttendanceEvents registers a sink for session transition events.
func WithAttendanceEvents(publish func(AttendanceEvent)) AttendanceOption {
	return func(s *AttendanceService) {
		s.publish = publish
	}
}

// AttendanceService manages check-in/check-out sessions. Each subject (a
// member or a staff user) holds at most one open session at a time; the
// invariant is enforced inside a transaction, never by read-then-write.
type AttendanceService struct {
	db      *gorm.DB
	now     func() time.Time
	publish func(AttendanceEvent)
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(db *gorm.DB, opts ...AttendanceOption) (*AttendanceService, error) {
	if db == nil {
		return nil, errors.New("attendance service: db is required")
	}

	service := &AttendanceService{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Subject identifies who a session belongs to. Exactly one of MemberID and
// StaffUserID is set, matching SubjectType.
type Subject struct {
	GymID       string
	SubjectType string
	MemberID    string
	StaffUserID string
}

func (s Subject) validate() error {
	if s.GymID == "" {
		return errors.New("attendance: gym id is required")
	}
	switch s.SubjectType {
	case models.SubjectMember:
		if s.MemberID == "" {
			return errors.New("attendance: member id is required")
		}
	case models.SubjectStaff:
		if s.StaffUserID == "" {
			return errors.New("attendance: staff user id is required")
		}
	default:
		return fmt.Errorf("attendance: unknown subject type %q", s.SubjectType)
	}
	return nil
}

// scope narrows a query to the subject's sessions.
func (s Subject) scope(query *gorm.DB) *gorm.DB {
	query = query.Where("gym_id = ? AND subject_type = ?", s.GymID, s.SubjectType)
	if s.SubjectType == models.SubjectMember {
		return query.Where("member_id = ?", s.MemberID)
	}
	return query.Where("staff_user_id = ?", s.StaffUserID)
}

// CheckInInput carries the parameters of a check-in.
type CheckInInput struct {
	Subject Subject
	Method  string
	Notes   string
}

// CheckIn opens a new session for the subject. A subject with an open session
// cannot check in again.
func (s *AttendanceService) CheckIn(ctx context.Context, input CheckInInput) (*models.AttendanceSession, error) {
	if err := input.Subject.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureSubjectExists(ctx, input.Subject); err != nil {
		return nil, err
	}

	method := input.Method
	if method == "" {
		method = models.MethodManual
	}

	now := s.now()
	session := &models.AttendanceSession{
		GymID:       input.Subject.GymID,
		SubjectType: input.Subject.SubjectType,
		CheckInAt:   now,
		Method:      method,
		Notes:       input.Notes,
	}
	if input.Subject.SubjectType == models.SubjectMember {
		session.MemberID = &input.Subject.MemberID
	} else {
		session.StaffUserID = &input.Subject.StaffUserID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := input.Subject.scope(tx.Model(&models.AttendanceSession{})).
			Where("check_out_at IS NULL").
			Count(&open).Error; err != nil {
			return fmt.Errorf("count open sessions: %w", err)
		}
		if open > 0 {
			return ErrAlreadyCheckedIn
		}
		return tx.Create(session).Error
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			return nil, err
		}
		return nil, fmt.Errorf("attendance service: check in: %w", err)
	}

	metrics.AttendanceEvents.WithLabelValues(EventCheckIn, session.SubjectType).Inc()
	metrics.OpenSessions.Inc()
	s.emit(EventCheckIn, session)

	return session, nil
}

// CheckOutInput carries the parameters of a check-out. At is optional; when
// nil the current time is used.
type CheckOutInput struct {
	Subject Subject
	At      *time.Time
}

// CheckOut closes the subject's most recent open session. Closing is a
// conditional update guarded on check_out_at being null, so a session cannot
// be closed twice.
func (s *AttendanceService) CheckOut(ctx context.Context, input CheckOutInput) (*models.AttendanceSession, error) {
	if err := input.Subject.validate(); err != nil {
		return nil, err
	}

	var session models.AttendanceSession
	err := input.Subject.scope(s.db.WithContext(ctx)).
		Where("check_out_at IS NULL").
		Order("check_in_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoOpenSession
		}
		return nil, fmt.Errorf("attendance service: find open session: %w", err)
	}

	now := s.now()
	checkOutAt := now
	if input.At != nil {
		checkOutAt = *input.At
	}
	if !checkOutAt.After(session.CheckInAt) {
		return nil, fmt.Errorf("%w: checkout must be after check-in", ErrInvalidEdit)
	}
	if checkOutAt.After(now) {
		return nil, fmt.Errorf("%w: checkout cannot be in the future", ErrInvalidEdit)
	}

	result := s.db.WithContext(ctx).
		Model(&models.AttendanceSession{}).
		Where("id = ? AND check_out_at IS NULL", session.ID).
		Update("check_out_at", checkOutAt)
	if result.Error != nil {
		return nil, fmt.Errorf("attendance service: check out: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNoOpenSession
	}
	session.CheckOutAt = &checkOutAt

	metrics.AttendanceEvents.WithLabelValues(EventCheckOut, session.SubjectType).Inc()
	metrics.OpenSessions.Dec()
	s.emit(EventCheckOut, &session)

	return &session, nil
}

// Status reflects the subject's current attendance state. It is derived from
// the open session, never stored.
type Status struct {
	IsCheckedIn    bool       `json:"is_checked_in"`
	SessionID      string     `json:"session_id,omitempty"`
	CheckInAt      *time.Time `json:"check_in_at,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds,omitempty"`
}

// CurrentStatus reports whether the subject is checked in and for how long.
func (s *AttendanceService) CurrentStatus(ctx context.Context, subject Subject) (*Status, error) {
	if err := subject.validate(); err != nil {
		return nil, err
	}

	var session models.AttendanceSession
	err := subject.scope(s.db.WithContext(ctx)).
		Where("check_out_at IS NULL").
		Order("check_in_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Status{}, nil
		}
		return nil, fmt.Errorf("attendance service: load status: %w", err)
	}

	checkIn := session.CheckInAt
	return &Status{
		IsCheckedIn:    true,
		SessionID:      session.ID,
		CheckInAt:      &checkIn,
		ElapsedSeconds: int64(s.now().Sub(checkIn).Seconds()),
	}, nil
}

// EditSessionInput carries a retroactive correction. Nil fields are left
// unchanged; ClearCheckOut reopens the session. Confirm acknowledges a
// significant change.
type EditSessionInput struct {
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	ClearCheckOut bool
	Notes         *string
	Confirm       bool
}

// EditSession applies a correction to an existing session. Hard rules reject
// the edit outright; soft rules pass with warnings. Edits that move either
// boundary by more than an hour, or add/remove the checkout, must be
// confirmed explicitly.
func (s *AttendanceService) EditSession(ctx context.Context, gymID, sessionID string, input EditSessionInput) (*models.AttendanceSession, []string, error) {
	var session models.AttendanceSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND gym_id = ?", sessionID, gymID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("attendance service: find session: %w", err)
	}

	newCheckIn := session.CheckInAt
	if input.CheckInAt != nil {
		newCheckIn = *input.CheckInAt
	}

	newCheckOut := session.CheckOutAt
	if input.ClearCheckOut {
		newCheckOut = nil
	} else if input.CheckOutAt != nil {
		newCheckOut = input.CheckOutAt
	}

	now := s.now()
	if newCheckIn.After(now) {
		return nil, nil, fmt.Errorf("%w: check-in cannot be in the future", ErrInvalidEdit)
	}
	if now.Sub(newCheckIn) > maxCheckInAge {
		return nil, nil, fmt.Errorf("%w: check-in cannot be more than a year in the past", ErrInvalidEdit)
	}
	if newCheckOut != nil {
		if !newCheckOut.After(newCheckIn) {
			return nil, nil, fmt.Errorf("%w: checkout must be after check-in", ErrInvalidEdit)
		}
		if newCheckOut.After(now) {
			return nil, nil, fmt.Errorf("%w: checkout cannot be in the future", ErrInvalidEdit)
		}
		duration := newCheckOut.Sub(newCheckIn)
		if duration < minSessionDuration {
			return nil, nil, fmt.Errorf("%w: session must last at least one minute", ErrInvalidEdit)
		}
		if duration > maxSessionDuration {
			return nil, nil, fmt.Errorf("%w: session cannot exceed 24 hours", ErrInvalidEdit)
		}
	}

	if significantChange(&session, newCheckIn, newCheckOut) && !input.Confirm {
		return nil, nil, ErrConfirmRequired
	}

	var warnings []string
	if now.Sub(newCheckIn) > staleCheckInAge {
		warnings = append(warnings, "check-in is more than 30 days in the past")
	}
	if newCheckOut != nil && newCheckOut.Sub(newCheckIn) > longSessionWarn {
		warnings = append(warnings, "session duration exceeds 8 hours")
	}

	wasOpen := session.CheckOutAt == nil

	updates := map[string]any{
		"check_in_at":  newCheckIn,
		"check_out_at": newCheckOut,
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if err := s.db.WithContext(ctx).Model(&session).Updates(updates).Error; err != nil {
		return nil, nil, fmt.Errorf("attendance service: edit session: %w", err)
	}

	session.CheckInAt = newCheckIn
	session.CheckOutAt = newCheckOut
	if input.Notes != nil {
		session.Notes = *input.Notes
	}

	isOpen := session.CheckOutAt == nil
	if wasOpen && !isOpen {
		metrics.OpenSessions.Dec()
	} else if !wasOpen && isOpen {
		metrics.OpenSessions.Inc()
	}
	metrics.AttendanceEvents.WithLabelValues(EventEdit, session.SubjectType).Inc()
	s.emit(EventEdit, &session)

	return &session, warnings, nil
}

// ListSessionsInput filters the session listing for a gym.
type ListSessionsInput struct {
	SubjectType string
	MemberID    string
	StaffUserID string
	From        *time.Time
	To          *time.Time
	OpenOnly    bool
	Pagination  Pagination
}

// ListSessions returns a gym's sessions, most recent check-in first.
func (s *AttendanceService) ListSessions(ctx context.Context, gymID string, input ListSessionsInput) ([]models.AttendanceSession, int64, error) {
	page := input.Pagination.Normalise()

	query := s.db.WithContext(ctx).
		Model(&models.AttendanceSession{}).
		Where("gym_id = ?", gymID)
	if input.SubjectType != "" {
		query = query.Where("subject_type = ?", input.SubjectType)
	}
	if input.MemberID != "" {
		query = query.Where("member_id = ?", input.MemberID)
	}
	if input.StaffUserID != "" {
		query = query.Where("staff_user_id = ?", input.StaffUserID)
	}
	if input.From != nil {
		query = query.Where("check_in_at >= ?", *input.From)
	}
	if input.To != nil {
		query = query.Where("check_in_at < ?", *input.To)
	}
	if input.OpenOnly {
		query = query.Where("check_out_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("attendance service: count sessions: %w", err)
	}

	var sessions []models.AttendanceSession
	err := query.
		Order("check_in_at DESC").
		Limit(page.PageSize).
		Offset(page.offset()).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("attendance service: list sessions: %w", err)
	}

	return sessions, total, nil
}

// significantChange reports whether the edit shifts either boundary by more
// than an hour or toggles the presence of a checkout.
func significantChange(session *models.AttendanceSession, newCheckIn time.Time, newCheckOut *time.Time) bool {
	if absDuration(newCheckIn.Sub(session.CheckInAt)) > significantShift {
		return true
	}
	if (session.CheckOutAt == nil) != (newCheckOut == nil) {
		return true
	}
	if session.CheckOutAt != nil && newCheckOut != nil {
		return absDuration(newCheckOut.Sub(*session.CheckOutAt)) > significantShift
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (s *AttendanceService) ensureSubjectExists(ctx context.Context, subject Subject) error {
	var count int64
	var err error
	if subject.SubjectType == models.SubjectMember {
		err = s.db.WithContext(ctx).
			Model(&models.Member{}).
			Where("id = ? AND gym_id = ?", subject.MemberID, subject.GymID).
			Count(&count).Error
	} else {
		err = s.db.WithContext(ctx).
			Model(&models.GymRole{}).
			Where("user_id = ? AND gym_id = ?", subject.StaffUserID, subject.GymID).
			Count(&count).Error
	}
	if err != nil {
		return fmt.Errorf("attendance service: resolve subject: %w", err)
	}
	if count == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

func (s *AttendanceService) emit(kind string, session *models.AttendanceSession) {
	if s.publish == nil {
		return
	}
	s.publish(AttendanceEvent{
		Kind:        kind,
		GymID:       session.GymID,
		SessionID:   session.ID,
		SubjectType: session.SubjectType,
		MemberID:    session.MemberID,
		StaffUserID: session.StaffUserID,
		CheckInAt:   session.CheckInAt,
		CheckOutAt:  session.CheckOutAt,
	})
}
