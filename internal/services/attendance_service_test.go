package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/database/testutil"
	"github.com/repfit/repfit/internal/models"
)

func createTestMember(t *testing.T, db *gorm.DB, gymID, email string) *models.Member {
	t.Helper()

	member := &models.Member{
		GymID:     gymID,
		FirstName: "Member",
		LastName:  "Test",
		Email:     email,
		IsActive:  true,
		JoinedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(member).Error)
	return member
}

func memberSubject(gymID, memberID string) Subject {
	return Subject{GymID: gymID, SubjectType: models.SubjectMember, MemberID: memberID}
}

func newTestAttendanceService(t *testing.T, db *gorm.DB, clock func() time.Time, opts ...AttendanceOption) *AttendanceService {
	t.Helper()

	opts = append([]AttendanceOption{WithAttendanceClock(clock)}, opts...)
	svc, err := NewAttendanceService(db, opts...)
	require.NoError(t, err)
	return svc
}

func TestCheckInOpensSingleSession(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	session, err := svc.CheckIn(context.Background(), CheckInInput{
		Subject: memberSubject(gym.ID, member.ID),
		Method:  models.MethodKiosk,
	})
	require.NoError(t, err)
	require.True(t, session.Open())
	require.Equal(t, now, session.CheckInAt)
	require.Equal(t, models.MethodKiosk, session.Method)

	// A second check-in while a session is open is a conflict.
	_, err = svc.CheckIn(context.Background(), CheckInInput{
		Subject: memberSubject(gym.ID, member.ID),
	})
	require.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestCheckInUnknownSubject(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	svc := newTestAttendanceService(t, db, time.Now)

	_, err := svc.CheckIn(context.Background(), CheckInInput{
		Subject: memberSubject(gym.ID, "missing"),
	})
	require.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestCheckInStaffSubject(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	user := createServiceUser(t, db, "coach@example.com")
	require.NoError(t, db.Create(&models.GymRole{
		GymID: gym.ID, UserID: user.ID, Role: models.RoleTrainer,
	}).Error)
	svc := newTestAttendanceService(t, db, time.Now)

	subject := Subject{GymID: gym.ID, SubjectType: models.SubjectStaff, StaffUserID: user.ID}

	session, err := svc.CheckIn(context.Background(), CheckInInput{Subject: subject})
	require.NoError(t, err)
	require.Equal(t, models.SubjectStaff, session.SubjectType)
	require.Equal(t, user.ID, *session.StaffUserID)

	// A user with no role in the gym is not a staff subject.
	outsider := createServiceUser(t, db, "other@example.com")
	_, err = svc.CheckIn(context.Background(), CheckInInput{
		Subject: Subject{GymID: gym.ID, SubjectType: models.SubjectStaff, StaffUserID: outsider.ID},
	})
	require.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestCheckOutClosesMostRecentOpenSession(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	_, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	session, err := svc.CheckOut(context.Background(), CheckOutInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)
	require.NotNil(t, session.CheckOutAt)
	require.Equal(t, 90*time.Minute, session.Duration())

	// Nothing left open.
	_, err = svc.CheckOut(context.Background(), CheckOutInput{Subject: memberSubject(gym.ID, member.ID)})
	require.ErrorIs(t, err, ErrNoOpenSession)
}

func TestCheckOutWithExplicitTime(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	_, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	at := now.Add(-time.Hour)
	session, err := svc.CheckOut(context.Background(), CheckOutInput{
		Subject: memberSubject(gym.ID, member.ID),
		At:      &at,
	})
	require.NoError(t, err)
	require.Equal(t, at, *session.CheckOutAt)
}

func TestCheckOutRejectsInvalidTimes(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	_, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	now = now.Add(time.Hour)

	before := now.Add(-2 * time.Hour)
	_, err = svc.CheckOut(context.Background(), CheckOutInput{
		Subject: memberSubject(gym.ID, member.ID), At: &before,
	})
	require.ErrorIs(t, err, ErrInvalidEdit)

	future := now.Add(time.Hour)
	_, err = svc.CheckOut(context.Background(), CheckOutInput{
		Subject: memberSubject(gym.ID, member.ID), At: &future,
	})
	require.ErrorIs(t, err, ErrInvalidEdit)
}

func TestCurrentStatusIsDerived(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	status, err := svc.CurrentStatus(context.Background(), memberSubject(gym.ID, member.ID))
	require.NoError(t, err)
	require.False(t, status.IsCheckedIn)

	session, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	status, err = svc.CurrentStatus(context.Background(), memberSubject(gym.ID, member.ID))
	require.NoError(t, err)
	require.True(t, status.IsCheckedIn)
	require.Equal(t, session.ID, status.SessionID)
	require.EqualValues(t, 45*60, status.ElapsedSeconds)

	_, err = svc.CheckOut(context.Background(), CheckOutInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	status, err = svc.CurrentStatus(context.Background(), memberSubject(gym.ID, member.ID))
	require.NoError(t, err)
	require.False(t, status.IsCheckedIn)
}

func seedClosedSession(t *testing.T, db *gorm.DB, gymID, memberID string, checkIn time.Time, duration time.Duration) *models.AttendanceSession {
	t.Helper()

	checkOut := checkIn.Add(duration)
	session := &models.AttendanceSession{
		GymID:       gymID,
		SubjectType: models.SubjectMember,
		MemberID:    &memberID,
		CheckInAt:   checkIn,
		CheckOutAt:  &checkOut,
		Method:      models.MethodManual,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func TestEditSessionHardRules(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	session := seedClosedSession(t, db, gym.ID, member.ID, now.Add(-2*time.Hour), time.Hour)

	cases := []struct {
		name  string
		input EditSessionInput
	}{
		{"future check-in", EditSessionInput{CheckInAt: timePtr(now.Add(time.Hour)), Confirm: true}},
		{"check-in too old", EditSessionInput{CheckInAt: timePtr(now.Add(-370 * 24 * time.Hour)), Confirm: true}},
		{"checkout before check-in", EditSessionInput{CheckOutAt: timePtr(now.Add(-3 * time.Hour)), Confirm: true}},
		{"future checkout", EditSessionInput{CheckOutAt: timePtr(now.Add(time.Hour)), Confirm: true}},
		{"too short", EditSessionInput{CheckOutAt: timePtr(session.CheckInAt.Add(30 * time.Second)), Confirm: true}},
		{"too long", EditSessionInput{
			CheckInAt:  timePtr(now.Add(-30 * time.Hour)),
			CheckOutAt: timePtr(now.Add(-time.Hour)),
			Confirm:    true,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.EditSession(context.Background(), gym.ID, session.ID, tc.input)
			require.ErrorIs(t, err, ErrInvalidEdit)
		})
	}

	// The record is untouched after every rejected edit.
	var stored models.AttendanceSession
	require.NoError(t, db.First(&stored, "id = ?", session.ID).Error)
	require.Equal(t, session.CheckInAt, stored.CheckInAt)
}

func TestEditSessionSoftWarnings(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	old := now.Add(-40 * 24 * time.Hour)
	session := seedClosedSession(t, db, gym.ID, member.ID, old, time.Hour)

	// Stretch the old session past 8 hours: both warnings fire, edit succeeds.
	_, warnings, err := svc.EditSession(context.Background(), gym.ID, session.ID, EditSessionInput{
		CheckOutAt: timePtr(old.Add(9 * time.Hour)),
		Confirm:    true,
	})
	require.NoError(t, err)
	require.Len(t, warnings, 2)
}

func TestEditSessionRequiresConfirmation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	session := seedClosedSession(t, db, gym.ID, member.ID, now.Add(-5*time.Hour), time.Hour)

	// Shifting check-in by two hours is significant.
	_, _, err := svc.EditSession(context.Background(), gym.ID, session.ID, EditSessionInput{
		CheckInAt: timePtr(session.CheckInAt.Add(-2 * time.Hour)),
	})
	require.ErrorIs(t, err, ErrConfirmRequired)

	// Removing the checkout is significant too.
	_, _, err = svc.EditSession(context.Background(), gym.ID, session.ID, EditSessionInput{
		ClearCheckOut: true,
	})
	require.ErrorIs(t, err, ErrConfirmRequired)

	// With confirmation the same edits pass.
	edited, _, err := svc.EditSession(context.Background(), gym.ID, session.ID, EditSessionInput{
		CheckInAt: timePtr(session.CheckInAt.Add(-2 * time.Hour)),
		Confirm:   true,
	})
	require.NoError(t, err)
	require.Equal(t, session.CheckInAt.Add(-2*time.Hour), edited.CheckInAt)
}

func TestEditSessionMinorChangeNeedsNoConfirmation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	session := seedClosedSession(t, db, gym.ID, member.ID, now.Add(-5*time.Hour), time.Hour)

	notes := "corrected by front desk"
	edited, warnings, err := svc.EditSession(context.Background(), gym.ID, session.ID, EditSessionInput{
		CheckInAt: timePtr(session.CheckInAt.Add(10 * time.Minute)),
		Notes:     &notes,
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, notes, edited.Notes)
}

func TestEditSessionUnknownSession(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	svc := newTestAttendanceService(t, db, time.Now)

	_, _, err := svc.EditSession(context.Background(), gym.ID, "missing", EditSessionInput{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsFilters(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	other := createTestMember(t, db, gym.ID, "o@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestAttendanceService(t, db, func() time.Time { return now })

	seedClosedSession(t, db, gym.ID, member.ID, now.Add(-48*time.Hour), time.Hour)
	seedClosedSession(t, db, gym.ID, member.ID, now.Add(-24*time.Hour), time.Hour)
	seedClosedSession(t, db, gym.ID, other.ID, now.Add(-12*time.Hour), time.Hour)
	_, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	all, total, err := svc.ListSessions(context.Background(), gym.ID, ListSessionsInput{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, all, 4)
	// Most recent check-in first.
	require.Equal(t, now, all[0].CheckInAt)

	byMember, total, err := svc.ListSessions(context.Background(), gym.ID, ListSessionsInput{MemberID: member.ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, byMember, 3)

	from := now.Add(-30 * time.Hour)
	recent, total, err := svc.ListSessions(context.Background(), gym.ID, ListSessionsInput{From: &from})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, recent, 3)

	open, total, err := svc.ListSessions(context.Background(), gym.ID, ListSessionsInput{OpenOnly: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, open, 1)
	require.True(t, open[0].Open())
}

func TestAttendanceEventsPublished(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gym := createTestGym(t, db, "Ironworks")
	member := createTestMember(t, db, gym.ID, "m@example.com")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	var events []AttendanceEvent
	svc := newTestAttendanceService(t, db,
		func() time.Time { return now },
		WithAttendanceEvents(func(e AttendanceEvent) { events = append(events, e) }),
	)

	_, err := svc.CheckIn(context.Background(), CheckInInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = svc.CheckOut(context.Background(), CheckOutInput{Subject: memberSubject(gym.ID, member.ID)})
	require.NoError(t, err)

	require.Len(t, events, 2)
	require.Equal(t, EventCheckIn, events[0].Kind)
	require.Equal(t, EventCheckOut, events[1].Kind)
	require.Equal(t, gym.ID, events[0].GymID)
	require.Equal(t, member.ID, *events[0].MemberID)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
