package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

var (
	// ErrPlanNotFound indicates the plan code or ID is unknown or inactive.
	ErrPlanNotFound = errors.New("billing: plan not found")
	// ErrSubscriptionNotFound indicates the gym has no subscription.
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	// ErrInvalidProvider indicates an unsupported billing provider.
	ErrInvalidProvider = errors.New("billing: invalid provider")
	// ErrSubscriptionCancelled indicates the subscription is already cancelled.
	ErrSubscriptionCancelled = errors.New("billing: subscription already cancelled")
)

// BillingOption customises BillingService behaviour.
type BillingOption func(*BillingService)

// WithBillingClock injects a custom clock primarily for testing.
func WithBillingClock(clock func() time.Time) BillingOption {
	return func(s *BillingService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// BillingService manages subscription plans and per-gym subscription records.
// Payment gateways are integrated out-of-band; this service only stores
// opaque provider references.
type BillingService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBillingService constructs a BillingService.
func NewBillingService(db *gorm.DB, opts ...BillingOption) (*BillingService, error) {
	if db == nil {
		return nil, errors.New("billing service: db is required")
	}
	service := &BillingService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ListPlans returns all active subscription plans, cheapest first.
func (s *BillingService) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_cents ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("billing service: list plans: %w", err)
	}
	return plans, nil
}

// GetPlanByCode resolves an active plan by its code.
func (s *BillingService) GetPlanByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := s.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("billing service: get plan: %w", err)
	}
	return &plan, nil
}

// GetSubscription returns the gym's subscription with its plan preloaded.
func (s *BillingService) GetSubscription(ctx context.Context, gymID string) (*models.GymSubscription, error) {
	var sub models.GymSubscription
	err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("gym_id = ?", gymID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("billing service: get subscription: %w", err)
	}
	return &sub, nil
}

// SubscribeInput carries the parameters of a new or replacement subscription.
type SubscribeInput struct {
	GymID            string
	PlanCode         string
	Provider         string
	ProviderRef      string
	CurrentPeriodEnd time.Time
}

// Subscribe puts the gym on a plan, replacing any existing subscription row.
func (s *BillingService) Subscribe(ctx context.Context, input SubscribeInput) (*models.GymSubscription, error) {
	if input.GymID == "" {
		return nil, errors.New("billing service: gym id is required")
	}
	switch input.Provider {
	case models.ProviderStripe, models.ProviderRazorpay:
	default:
		return nil, ErrInvalidProvider
	}

	plan, err := s.GetPlanByCode(ctx, input.PlanCode)
	if err != nil {
		return nil, err
	}

	periodEnd := input.CurrentPeriodEnd
	if periodEnd.IsZero() {
		periodEnd = s.now().AddDate(0, 1, 0)
	}

	sub := &models.GymSubscription{
		GymID:            input.GymID,
		PlanID:           plan.ID,
		Provider:         input.Provider,
		ProviderRef:      input.ProviderRef,
		Status:           models.SubscriptionActive,
		CurrentPeriodEnd: periodEnd,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gym_id = ?", input.GymID).Delete(&models.GymSubscription{}).Error; err != nil {
			return fmt.Errorf("clear previous subscription: %w", err)
		}
		return tx.Create(sub).Error
	})
	if err != nil {
		return nil, fmt.Errorf("billing service: subscribe: %w", err)
	}

	sub.Plan = plan
	return sub, nil
}

// Cancel marks the gym's subscription cancelled. Cancelling twice is a
// conflict; the conditional update keeps the first cancellation timestamp.
func (s *BillingService) Cancel(ctx context.Context, gymID string) (*models.GymSubscription, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.GymSubscription{}).
		Where("gym_id = ? AND status <> ?", gymID, models.SubscriptionCancelled).
		Updates(map[string]any{
			"status":       models.SubscriptionCancelled,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("billing service: cancel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetSubscription(ctx, gymID); err != nil {
			return nil, err
		}
		return nil, ErrSubscriptionCancelled
	}
	return s.GetSubscription(ctx, gymID)
}

// MarkPastDue transitions an active subscription to past_due, typically when
// a provider webhook reports a failed charge.
func (s *BillingService) MarkPastDue(ctx context.Context, gymID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.GymSubscription{}).
		Where("gym_id = ? AND status = ?", gymID, models.SubscriptionActive).
		Update("status", models.SubscriptionPastDue)
	if result.Error != nil {
		return fmt.Errorf("billing service: mark past due: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
