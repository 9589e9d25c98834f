package models

import "time"

// Billing providers referenced by subscriptions. Gateways are integrated
// out-of-band; the backend stores opaque provider references only.
const (
	ProviderStripe   = "stripe"
	ProviderRazorpay = "razorpay"
)

// Subscription statuses.
const (
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// SubscriptionPlan is a seeded billing tier gyms subscribe to.
type SubscriptionPlan struct {
	BaseModel

	Code        string `gorm:"uniqueIndex;not null" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	PriceCents  int    `gorm:"not null" json:"price_cents"`
	Currency    string `gorm:"default:USD" json:"currency"`
	Interval    string `gorm:"default:month" json:"interval"`
	MaxMembers  int    `json:"max_members"`
	MaxStaff    int    `json:"max_staff"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	Description string `json:"description"`
}

// GymSubscription links a gym to a plan with its current billing state.
type GymSubscription struct {
	BaseModel

	GymID       string `gorm:"type:uuid;not null;uniqueIndex" json:"gym_id"`
	PlanID      string `gorm:"type:uuid;not null" json:"plan_id"`
	Provider    string `gorm:"not null" json:"provider"`
	ProviderRef string `json:"provider_ref"`
	Status      string `gorm:"not null;default:active;index" json:"status"`

	CurrentPeriodEnd time.Time  `json:"current_period_end"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`

	Gym  *Gym              `gorm:"foreignKey:GymID" json:"gym,omitempty"`
	Plan *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}
