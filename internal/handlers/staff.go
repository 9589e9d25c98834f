package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/services"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// StaffHandler serves the staff roster and direct role changes.
type StaffHandler struct {
	users *services.UserService
	audit *services.AuditService
}

// NewStaffHandler wires the staff endpoints.
func NewStaffHandler(users *services.UserService, audit *services.AuditService) (*StaffHandler, error) {
	if users == nil {
		return nil, errors.New("staff handler: user service is required")
	}
	if audit == nil {
		return nil, errors.New("staff handler: audit service is required")
	}
	return &StaffHandler{users: users, audit: audit}, nil
}

type staffDTO struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      string    `json:"role"`
	SinceAt   time.Time `json:"since_at"`
}

func toStaffDTO(role *models.GymRole) staffDTO {
	dto := staffDTO{
		UserID:  role.UserID,
		Role:    role.Role,
		SinceAt: role.CreatedAt,
	}
	if role.User != nil {
		dto.Email = role.User.Email
		dto.FirstName = role.User.FirstName
		dto.LastName = role.User.LastName
	}
	return dto
}

// List returns the gym's staff roster with roles.
func (h *StaffHandler) List(c *gin.Context) {
	roles, err := h.users.ListStaff(requestContext(c), c.Param(middleware.GymParam))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]staffDTO, 0, len(roles))
	for i := range roles {
		dtos = append(dtos, toStaffDTO(&roles[i]))
	}
	response.Success(c, http.StatusOK, dtos)
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,gym_role"`
}

// UpdateRole changes the role a user holds in the gym.
func (h *StaffHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)
	targetID := c.Param("userID")

	role, err := h.users.AssignRole(ctx, gymID, targetID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			response.Error(c, appErrors.NewBadRequest("unknown gym role"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	actorID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    actorID,
		Action:    services.AuditRoleAssigned,
		Resource:  "user:" + targetID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"role": req.Role},
	})

	response.Success(c, http.StatusOK, toStaffDTO(role))
}

// Remove strips the user's role in the gym.
func (h *StaffHandler) Remove(c *gin.Context) {
	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)
	targetID := c.Param("userID")

	if err := h.users.RemoveRole(ctx, gymID, targetID); err != nil {
		switch {
		case errors.Is(err, services.ErrRoleNotFound):
			response.Error(c, appErrors.ErrNotFound)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	actorID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    actorID,
		Action:    services.AuditRoleRemoved,
		Resource:  "user:" + targetID,
		IPAddress: c.ClientIP(),
	})

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
