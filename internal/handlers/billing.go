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

// BillingHandler serves subscription plans and gym subscription state.
type BillingHandler struct {
	billing *services.BillingService
	audit   *services.AuditService
}

// NewBillingHandler wires the billing endpoints.
func NewBillingHandler(billing *services.BillingService, audit *services.AuditService) (*BillingHandler, error) {
	if billing == nil {
		return nil, errors.New("billing handler: billing service is required")
	}
	if audit == nil {
		return nil, errors.New("billing handler: audit service is required")
	}
	return &BillingHandler{billing: billing, audit: audit}, nil
}

type planDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	PriceCents  int    `json:"price_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	MaxMembers  int    `json:"max_members,omitempty"`
	MaxStaff    int    `json:"max_staff,omitempty"`
	Description string `json:"description,omitempty"`
}

func toPlanDTO(plan *models.SubscriptionPlan) planDTO {
	return planDTO{
		ID:          plan.ID,
		Code:        plan.Code,
		Name:        plan.Name,
		PriceCents:  plan.PriceCents,
		Currency:    plan.Currency,
		Interval:    plan.Interval,
		MaxMembers:  plan.MaxMembers,
		MaxStaff:    plan.MaxStaff,
		Description: plan.Description,
	}
}

type subscriptionDTO struct {
	ID               string     `json:"id"`
	GymID            string     `json:"gym_id"`
	Plan             *planDTO   `json:"plan,omitempty"`
	Provider         string     `json:"provider"`
	ProviderRef      string     `json:"provider_ref,omitempty"`
	Status           string     `json:"status"`
	CurrentPeriodEnd time.Time  `json:"current_period_end"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

func toSubscriptionDTO(sub *models.GymSubscription) subscriptionDTO {
	dto := subscriptionDTO{
		ID:               sub.ID,
		GymID:            sub.GymID,
		Provider:         sub.Provider,
		ProviderRef:      sub.ProviderRef,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		CancelledAt:      sub.CancelledAt,
	}
	if sub.Plan != nil {
		plan := toPlanDTO(sub.Plan)
		dto.Plan = &plan
	}
	return dto
}

// ListPlans returns the active subscription plans, cheapest first.
func (h *BillingHandler) ListPlans(c *gin.Context) {
	plans, err := h.billing.ListPlans(requestContext(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]planDTO, 0, len(plans))
	for i := range plans {
		dtos = append(dtos, toPlanDTO(&plans[i]))
	}
	response.Success(c, http.StatusOK, dtos)
}

// GetSubscription returns the gym's current subscription.
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	sub, err := h.billing.GetSubscription(requestContext(c), c.Param(middleware.GymParam))
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toSubscriptionDTO(sub))
}

type subscribeRequest struct {
	PlanCode         string     `json:"plan_code" validate:"required"`
	Provider         string     `json:"provider" validate:"required,oneof=stripe razorpay"`
	ProviderRef      string     `json:"provider_ref" validate:"max=255"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

// Subscribe puts the gym on a plan, replacing any existing subscription.
// Payment happens out-of-band; only the provider reference is stored.
func (h *BillingHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)

	input := services.SubscribeInput{
		GymID:       gymID,
		PlanCode:    req.PlanCode,
		Provider:    req.Provider,
		ProviderRef: req.ProviderRef,
	}
	// Absent period end stays zero so the service applies its default.
	if req.CurrentPeriodEnd != nil {
		input.CurrentPeriodEnd = *req.CurrentPeriodEnd
	}

	sub, err := h.billing.Subscribe(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPlanNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrInvalidProvider):
			response.Error(c, appErrors.NewBadRequest("unknown billing provider"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	userID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    userID,
		Action:    services.AuditSubscription,
		Resource:  "subscription:" + sub.ID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"plan": req.PlanCode, "provider": req.Provider},
	})

	response.Success(c, http.StatusCreated, toSubscriptionDTO(sub))
}

// Cancel marks the gym's subscription cancelled.
func (h *BillingHandler) Cancel(c *gin.Context) {
	ctx := requestContext(c)
	gymID := c.Param(middleware.GymParam)

	sub, err := h.billing.Cancel(ctx, gymID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubscriptionNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrSubscriptionCancelled):
			response.Error(c, appErrors.NewConflict("subscription is already cancelled"))
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	userID, _ := currentUserID(c)
	h.audit.Record(ctx, services.AuditEntry{
		GymID:     gymID,
		UserID:    userID,
		Action:    services.AuditSubscription,
		Resource:  "subscription:" + sub.ID,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]any{"status": models.SubscriptionCancelled},
	})

	response.Success(c, http.StatusOK, toSubscriptionDTO(sub))
}
