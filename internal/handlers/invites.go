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

// InviteHandler serves staff invitation management plus the public token
// verification and accept endpoints.
type InviteHandler struct {
	invites *services.InviteService
	users   *services.UserService
	audit   *services.AuditService
}

// NewInviteHandler wires the invitation endpoints.
func NewInviteHandler(invites *services.InviteService, users *services.UserService, audit *services.AuditService) (*InviteHandler, error) {
	if invites == nil {
		return nil, errors.New("invite handler: invite service is required")
	}
	if users == nil {
		return nil, errors.New("invite handler: user service is required")
	}
	if audit == nil {
		return nil, errors.New("invite handler: audit service is required")
	}
	return &InviteHandler{invites: invites, users: users, audit: audit}, nil
}

type inviteDTO struct {
	ID         string     `json:"id"`
	GymID      string     `json:"gym_id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	InvitedBy  string     `json:"invited_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toInviteDTO(invite *models.GymInvitation) inviteDTO {
	return inviteDTO{
		ID:         invite.ID,
		GymID:      invite.GymID,
		Email:      invite.Email,
		Role:       invite.Role,
		Status:     invite.Status,
		ExpiresAt:  invite.ExpiresAt,
		InvitedBy:  invite.InvitedBy,
		AcceptedAt: invite.AcceptedAt,
		CreatedAt:  invite.CreatedAt,
	}
}

type createInviteRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"role" validate:"required,gym_role"`
	Message string `json:"message" validate:"max=500"`
}

type inviteCreatedResponse struct {
	Invite inviteDTO `json:"invite"`
	Link   string    `json:"link"`
}

// Create issues a pending invitation for the gym and emails the invite link.
// A failed email delivery is reported as a warning, not an error.
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID, _ := currentUserID(c)
	ctx := requestContext(c)
	result, err := h.invites.CreateInvite(ctx, services.CreateInviteInput{
		GymID:     c.Param(middleware.GymParam),
		Email:     req.Email,
		Role:      req.Role,
		Message:   req.Message,
		InvitedBy: userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvitePendingExists):
			response.Error(c, appErrors.NewConflict("a pending invitation already exists for this email"))
		case errors.Is(err, services.ErrInvalidRole):
			response.Error(c, appErrors.NewBadRequest("unknown gym role"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	h.audit.Record(ctx, services.AuditEntry{
		GymID:     result.Invite.GymID,
		UserID:    userID,
		Action:    services.AuditInviteCreated,
		Resource:  "invite:" + result.Invite.ID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"email": result.Invite.Email, "role": result.Invite.Role},
	})

	payload := inviteCreatedResponse{Invite: toInviteDTO(result.Invite), Link: result.Link}
	if result.EmailWarning != "" {
		response.SuccessWithWarnings(c, http.StatusCreated, payload, []string{result.EmailWarning})
		return
	}
	response.Success(c, http.StatusCreated, payload)
}

// List returns the gym's invitations, optionally filtered by status.
func (h *InviteHandler) List(c *gin.Context) {
	page := pageFromQuery(c).Normalise()
	invites, total, err := h.invites.ListInvites(requestContext(c), c.Param(middleware.GymParam), services.ListInvitesInput{
		Status:     c.Query("status"),
		Pagination: page,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]inviteDTO, 0, len(invites))
	for i := range invites {
		dtos = append(dtos, toInviteDTO(&invites[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, dtos, response.PageMeta(page.Page, page.PageSize, int(total)))
}

type updateInviteRequest struct {
	Role      string     `json:"role" validate:"omitempty,gym_role"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Update changes the role or expiry of a pending invitation.
func (h *InviteHandler) Update(c *gin.Context) {
	var req updateInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.invites.UpdateInvite(requestContext(c), c.Param(middleware.GymParam), c.Param("inviteID"), services.UpdateInviteInput{
		Role:      req.Role,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInviteNotPending):
			response.Error(c, appErrors.NewConflict("only pending invitations can be updated"))
		case errors.Is(err, services.ErrInvalidRole):
			response.Error(c, appErrors.NewBadRequest("unknown gym role"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

// Resend rotates the token of a non-accepted invitation, resets its expiry,
// and emails a fresh link.
func (h *InviteHandler) Resend(c *gin.Context) {
	ctx := requestContext(c)
	result, err := h.invites.ResendInvite(ctx, c.Param(middleware.GymParam), c.Param("inviteID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInviteAlreadyAccepted):
			response.Error(c, appErrors.NewConflict("invitation has already been accepted"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	userID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     result.Invite.GymID,
		UserID:    userID,
		Action:    services.AuditInviteResent,
		Resource:  "invite:" + result.Invite.ID,
		IPAddress: c.ClientIP(),
	})

	payload := inviteCreatedResponse{Invite: toInviteDTO(result.Invite), Link: result.Link}
	if result.EmailWarning != "" {
		response.SuccessWithWarnings(c, http.StatusOK, payload, []string{result.EmailWarning})
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// Revoke cancels a pending invitation.
func (h *InviteHandler) Revoke(c *gin.Context) {
	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)
	inviteID := c.Param("inviteID")

	if err := h.invites.RevokeInvite(ctx, gymID, inviteID); err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInviteNotPending):
			response.Error(c, appErrors.NewConflict("invitation is no longer pending"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	userID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    userID,
		Action:    services.AuditInviteRevoked,
		Resource:  "invite:" + inviteID,
		IPAddress: c.ClientIP(),
	})

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

type inviteVerifyResponse struct {
	Valid   bool   `json:"valid"`
	GymName string `json:"gym_name,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Verify checks an invitation token without consuming it. Invalid tokens get
// a validity payload rather than an error so signup UIs can explain why.
func (h *InviteHandler) Verify(c *gin.Context) {
	token := c.Query("invite")
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("invite token is required"))
		return
	}

	invite, err := h.invites.VerifyToken(requestContext(c), token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInviteExpired):
			response.Success(c, http.StatusOK, inviteVerifyResponse{Reason: "expired"})
		case errors.Is(err, services.ErrInviteAlreadyAccepted):
			response.Success(c, http.StatusOK, inviteVerifyResponse{Reason: "accepted"})
		case errors.Is(err, services.ErrInviteNotPending):
			response.Success(c, http.StatusOK, inviteVerifyResponse{Reason: "revoked"})
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	payload := inviteVerifyResponse{
		Valid: true,
		Email: invite.Email,
		Role:  invite.Role,
	}
	if invite.Gym != nil {
		payload.GymName = invite.Gym.Name
	}
	response.Success(c, http.StatusOK, payload)
}

type acceptInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

// Accept consumes an invitation for the authenticated user, granting the
// invited role. The account email must match the invitation.
func (h *InviteHandler) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req acceptInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	invite, err := h.invites.AcceptInvite(ctx, req.Token, user)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInviteNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInviteExpired):
			response.Error(c, appErrors.NewBadRequest("invitation has expired"))
		case errors.Is(err, services.ErrInviteAlreadyAccepted):
			response.Error(c, appErrors.NewConflict("invitation has already been accepted"))
		case errors.Is(err, services.ErrInviteNotPending):
			response.Error(c, appErrors.NewConflict("invitation is no longer pending"))
		case errors.Is(err, services.ErrInviteEmailMismatch):
			response.Error(c, appErrors.NewConflict("invitation was issued to a different email address"))
		case errors.Is(err, services.ErrAlreadyGymMember):
			response.Error(c, appErrors.NewConflict("you already have a role in this gym"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	h.audit.Record(ctx, services.AuditEntry{
		GymID:     invite.GymID,
		UserID:    userID,
		Action:    services.AuditInviteAccepted,
		Resource:  "invite:" + invite.ID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"role": invite.Role},
	})

	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

// Cleanup sweeps lapsed pending invitations into the expired state. Exposed
// to platform admins; never scheduled.
func (h *InviteHandler) Cleanup(c *gin.Context) {
	count, err := h.invites.CleanupExpired(requestContext(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"expired": count})
}
