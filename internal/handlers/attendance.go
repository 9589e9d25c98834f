package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/permissions"
	"github.com/repfit/repfit/internal/services"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// AttendanceHandler serves check-in/out, status, session listing, and
// retroactive edits.
type AttendanceHandler struct {
	attendance *services.AttendanceService
	members    *services.MemberService
	users      *services.UserService
	checker    *permissions.Checker
	audit      *services.AuditService
}

// NewAttendanceHandler wires the attendance endpoints.
func NewAttendanceHandler(attendance *services.AttendanceService, members *services.MemberService, users *services.UserService, checker *permissions.Checker, audit *services.AuditService) (*AttendanceHandler, error) {
	if attendance == nil {
		return nil, errors.New("attendance handler: attendance service is required")
	}
	if members == nil {
		return nil, errors.New("attendance handler: member service is required")
	}
	if users == nil {
		return nil, errors.New("attendance handler: user service is required")
	}
	if checker == nil {
		return nil, errors.New("attendance handler: permission checker is required")
	}
	if audit == nil {
		return nil, errors.New("attendance handler: audit service is required")
	}
	return &AttendanceHandler{attendance: attendance, members: members, users: users, checker: checker, audit: audit}, nil
}

type sessionDTO struct {
	ID          string     `json:"id"`
	GymID       string     `json:"gym_id"`
	SubjectType string     `json:"subject_type"`
	MemberID    *string    `json:"member_id,omitempty"`
	StaffUserID *string    `json:"staff_user_id,omitempty"`
	CheckInAt   time.Time  `json:"check_in_at"`
	CheckOutAt  *time.Time `json:"check_out_at,omitempty"`
	Open        bool       `json:"open"`
	Method      string     `json:"method"`
	Notes       string     `json:"notes,omitempty"`
}

func toSessionDTO(session *models.AttendanceSession) sessionDTO {
	return sessionDTO{
		ID:          session.ID,
		GymID:       session.GymID,
		SubjectType: session.SubjectType,
		MemberID:    session.MemberID,
		StaffUserID: session.StaffUserID,
		CheckInAt:   session.CheckInAt,
		CheckOutAt:  session.CheckOutAt,
		Open:        session.Open(),
		Method:      session.Method,
		Notes:       session.Notes,
	}
}

// resolveSubject maps the caller (or an explicitly named member) to an
// attendance subject within the gym. Checking in another member requires the
// attendance.record permission; self check-in only requires belonging to the
// gym, preferring the member record when the account is linked to one.
func (h *AttendanceHandler) resolveSubject(c *gin.Context, gymID, memberID string) (services.Subject, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return services.Subject{}, false
	}
	if gymID == "" {
		response.Error(c, appErrors.NewBadRequest("gym_id is required"))
		return services.Subject{}, false
	}

	ctx := requestContext(c)

	if memberID != "" {
		member, err := h.members.GetMember(ctx, gymID, memberID)
		if err != nil {
			if errors.Is(err, services.ErrMemberNotFound) {
				response.Error(c, appErrors.ErrNotFound)
			} else {
				response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			}
			return services.Subject{}, false
		}

		// Acting on behalf of a member needs front-desk rights unless the
		// member record is the caller's own.
		if member.UserID == nil || *member.UserID != userID {
			allowed, err := h.checker.Check(ctx, userID, gymID, "attendance.record")
			if err != nil {
				response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
				return services.Subject{}, false
			}
			if !allowed {
				response.Error(c, appErrors.ErrForbidden)
				return services.Subject{}, false
			}
		}

		return services.Subject{GymID: gymID, SubjectType: models.SubjectMember, MemberID: member.ID}, true
	}

	member, err := h.members.FindByUser(ctx, gymID, userID)
	if err == nil {
		return services.Subject{GymID: gymID, SubjectType: models.SubjectMember, MemberID: member.ID}, true
	}
	if !errors.Is(err, services.ErrMemberNotFound) {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return services.Subject{}, false
	}

	role, err := h.users.RoleInGym(ctx, gymID, userID)
	if err != nil {
		if errors.Is(err, services.ErrRoleNotFound) {
			response.Error(c, appErrors.ErrForbidden)
		} else {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return services.Subject{}, false
	}
	if role == models.RoleMember {
		// A bare member role without a member record cannot track attendance.
		response.Error(c, appErrors.NewBadRequest("no member record is linked to this account"))
		return services.Subject{}, false
	}

	return services.Subject{GymID: gymID, SubjectType: models.SubjectStaff, StaffUserID: userID}, true
}

type checkInRequest struct {
	GymID    string `json:"gym_id" validate:"required"`
	MemberID string `json:"member_id"`
	Method   string `json:"method" validate:"omitempty,oneof=manual portal kiosk"`
	Notes    string `json:"notes" validate:"max=500"`
}

// CheckIn opens a session for the caller or a named member.
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if !bindAndValidate(c, &req) {
		return
	}

	subject, ok := h.resolveSubject(c, req.GymID, req.MemberID)
	if !ok {
		return
	}

	method := req.Method
	if method == "" {
		method = models.MethodManual
	}

	session, err := h.attendance.CheckIn(requestContext(c), services.CheckInInput{
		Subject: subject,
		Method:  method,
		Notes:   req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyCheckedIn):
			response.Error(c, appErrors.NewConflict("an open session already exists"))
		case errors.Is(err, services.ErrSubjectNotFound):
			response.Error(c, appErrors.ErrNotFound)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusCreated, toSessionDTO(session))
}

type checkOutRequest struct {
	GymID      string     `json:"gym_id" validate:"required"`
	MemberID   string     `json:"member_id"`
	CheckOutAt *time.Time `json:"check_out_at"`
}

// CheckOut closes the subject's open session, at the supplied time or now.
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	subject, ok := h.resolveSubject(c, req.GymID, req.MemberID)
	if !ok {
		return
	}

	session, err := h.attendance.CheckOut(requestContext(c), services.CheckOutInput{
		Subject: subject,
		At:      req.CheckOutAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoOpenSession):
			response.Error(c, appErrors.NewNotFound("no open session to check out of"))
		case errors.Is(err, services.ErrInvalidEdit):
			response.Error(c, appErrors.NewBadRequest("check-out time must be after check-in and not in the future"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, toSessionDTO(session))
}

// Status reports whether the caller is currently checked in.
func (h *AttendanceHandler) Status(c *gin.Context) {
	subject, ok := h.resolveSubject(c, c.Query("gym_id"), c.Query("member_id"))
	if !ok {
		return
	}

	status, err := h.attendance.CurrentStatus(requestContext(c), subject)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, status)
}

// List returns the gym's sessions with filters, newest check-in first.
func (h *AttendanceHandler) List(c *gin.Context) {
	input := services.ListSessionsInput{
		SubjectType: c.Query("subject_type"),
		MemberID:    c.Query("member_id"),
		StaffUserID: c.Query("staff_user_id"),
		OpenOnly:    c.Query("open") == "true",
		Pagination:  pageFromQuery(c).Normalise(),
	}
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("from must be an RFC 3339 timestamp"))
			return
		}
		input.From = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("to must be an RFC 3339 timestamp"))
			return
		}
		input.To = &parsed
	}

	sessions, total, err := h.attendance.ListSessions(requestContext(c), c.Param(middleware.GymParam), input)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]sessionDTO, 0, len(sessions))
	for i := range sessions {
		dtos = append(dtos, toSessionDTO(&sessions[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, dtos, response.PageMeta(input.Pagination.Page, input.Pagination.PageSize, int(total)))
}

type editSessionRequest struct {
	CheckInAt     *time.Time `json:"check_in_at"`
	CheckOutAt    *time.Time `json:"check_out_at"`
	ClearCheckOut bool       `json:"clear_check_out"`
	Notes         *string    `json:"notes"`
	Confirm       bool       `json:"confirm"`
}

// Edit applies a retroactive correction to a session. Hard validation
// failures reject the edit; soft findings come back as warnings. Significant
// changes must be confirmed explicitly.
func (h *AttendanceHandler) Edit(c *gin.Context) {
	var req editSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)
	sessionID := c.Param("sessionID")

	session, warnings, err := h.attendance.EditSession(ctx, gymID, sessionID, services.EditSessionInput{
		CheckInAt:     req.CheckInAt,
		CheckOutAt:    req.CheckOutAt,
		ClearCheckOut: req.ClearCheckOut,
		Notes:         req.Notes,
		Confirm:       req.Confirm,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrConfirmRequired):
			response.Error(c, appErrors.NewConflict("significant change requires confirmation"))
		case errors.Is(err, services.ErrInvalidEdit):
			response.Error(c, appErrors.NewBadRequest(err.Error()))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	userID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    userID,
		Action:    services.AuditAttendanceEdit,
		Resource:  "session:" + sessionID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"confirmed": req.Confirm},
	})

	if len(warnings) > 0 {
		response.SuccessWithWarnings(c, http.StatusOK, toSessionDTO(session), warnings)
		return
	}
	response.Success(c, http.StatusOK, toSessionDTO(session))
}
