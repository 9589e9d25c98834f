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

// MemberHandler serves gym member management.
type MemberHandler struct {
	members *services.MemberService
}

// NewMemberHandler wires the member endpoints.
func NewMemberHandler(members *services.MemberService) (*MemberHandler, error) {
	if members == nil {
		return nil, errors.New("member handler: member service is required")
	}
	return &MemberHandler{members: members}, nil
}

type memberDTO struct {
	ID        string    `json:"id"`
	GymID     string    `json:"gym_id"`
	UserID    *string   `json:"user_id,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	IsActive  bool      `json:"is_active"`
	JoinedAt  time.Time `json:"joined_at"`
}

func toMemberDTO(member *models.Member) memberDTO {
	return memberDTO{
		ID:        member.ID,
		GymID:     member.GymID,
		UserID:    member.UserID,
		FirstName: member.FirstName,
		LastName:  member.LastName,
		Email:     member.Email,
		Phone:     member.Phone,
		Notes:     member.Notes,
		IsActive:  member.IsActive,
		JoinedAt:  member.JoinedAt,
	}
}

type createMemberRequest struct {
	FirstName string     `json:"first_name" validate:"required,max=100"`
	LastName  string     `json:"last_name" validate:"max=100"`
	Email     string     `json:"email" validate:"omitempty,email"`
	Phone     string     `json:"phone" validate:"max=32"`
	Notes     string     `json:"notes" validate:"max=1000"`
	UserID    string     `json:"user_id" validate:"omitempty,uuid4"`
	JoinedAt  *time.Time `json:"joined_at"`
}

// Create adds a member record to the gym.
func (h *MemberHandler) Create(c *gin.Context) {
	var req createMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.members.CreateMember(requestContext(c), services.CreateMemberInput{
		GymID:     c.Param(middleware.GymParam),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
		UserID:    req.UserID,
		JoinedAt:  req.JoinedAt,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, toMemberDTO(member))
}

// List returns the gym's members with optional search.
func (h *MemberHandler) List(c *gin.Context) {
	input := services.ListMembersInput{
		Search:     c.Query("search"),
		ActiveOnly: c.Query("active") == "true",
		Pagination: pageFromQuery(c).Normalise(),
	}

	members, total, err := h.members.ListMembers(requestContext(c), c.Param(middleware.GymParam), input)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]memberDTO, 0, len(members))
	for i := range members {
		dtos = append(dtos, toMemberDTO(&members[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, dtos, response.PageMeta(input.Pagination.Page, input.Pagination.PageSize, int(total)))
}

// Get returns a single member record.
func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.members.GetMember(requestContext(c), c.Param(middleware.GymParam), c.Param("memberID"))
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toMemberDTO(member))
}

type updateMemberRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
	IsActive  *bool   `json:"is_active"`
	UserID    *string `json:"user_id"`
}

// Update applies a partial change to a member record. Setting user_id to an
// empty string unlinks the portal account.
func (h *MemberHandler) Update(c *gin.Context) {
	var req updateMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.members.UpdateMember(requestContext(c), c.Param(middleware.GymParam), c.Param("memberID"), services.UpdateMemberInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
		IsActive:  req.IsActive,
		UserID:    req.UserID,
	})
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toMemberDTO(member))
}

// Delete archives a member. Attendance history is retained.
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.members.ArchiveMember(requestContext(c), c.Param(middleware.GymParam), c.Param("memberID")); err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"archived": true})
}
