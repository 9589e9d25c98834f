package database

import (
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Gym{},
		&models.GymRole{},
		&models.Member{},
		&models.GymInvitation{},
		&models.AttendanceSession{},
		&models.AuthSession{},
		&models.MFASecret{},
		&models.AuditLog{},
		&models.SubscriptionPlan{},
		&models.GymSubscription{},
	)
}

// SeedData populates the default subscription plans.
func SeedData(db *gorm.DB) error {
	plans := []models.SubscriptionPlan{
		{
			BaseModel:   models.BaseModel{ID: "plan-starter"},
			Code:        "starter",
			Name:        "Starter",
			PriceCents:  4900,
			Interval:    "month",
			MaxMembers:  150,
			MaxStaff:    5,
			Description: "Single location, up to 150 members",
		},
		{
			BaseModel:   models.BaseModel{ID: "plan-growth"},
			Code:        "growth",
			Name:        "Growth",
			PriceCents:  9900,
			Interval:    "month",
			MaxMembers:  500,
			MaxStaff:    20,
			Description: "Growing gyms, up to 500 members",
		},
		{
			BaseModel:   models.BaseModel{ID: "plan-scale"},
			Code:        "scale",
			Name:        "Scale",
			PriceCents:  19900,
			Interval:    "month",
			MaxMembers:  0,
			MaxStaff:    0,
			Description: "Unlimited members and staff",
		},
	}

	for _, plan := range plans {
		if err := db.Where(models.SubscriptionPlan{Code: plan.Code}).
			Attrs(plan).
			FirstOrCreate(&models.SubscriptionPlan{}).Error; err != nil {
			return err
		}
	}

	return nil
}
