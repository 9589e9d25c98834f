package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

// ErrGymNotFound indicates the gym does not exist or is not visible.
var ErrGymNotFound = errors.New("gym: not found")

// GymService manages tenant records and owner bootstrapping.
type GymService struct {
	db *gorm.DB
}

// NewGymService constructs a GymService.
func NewGymService(db *gorm.DB) (*GymService, error) {
	if db == nil {
		return nil, errors.New("gym service: db is required")
	}
	return &GymService{db: db}, nil
}

// CreateGymInput carries the parameters for a new gym.
type CreateGymInput struct {
	Name         string
	ContactEmail string
	Timezone     string
	Settings     datatypes.JSON
	OwnerID      string
}

// CreateGym creates a gym and assigns the creating user as its owner in one
// transaction.
func (s *GymService) CreateGym(ctx context.Context, input CreateGymInput) (*models.Gym, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.New("gym service: name is required")
	}
	if input.OwnerID == "" {
		return nil, errors.New("gym service: owner id is required")
	}

	gym := &models.Gym{
		Name:         name,
		ContactEmail: normaliseEmail(input.ContactEmail),
		Timezone:     input.Timezone,
		Settings:     input.Settings,
		IsActive:     true,
	}
	if gym.Timezone == "" {
		gym.Timezone = "UTC"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(gym).Error; err != nil {
			return fmt.Errorf("create gym: %w", err)
		}
		role := models.GymRole{
			GymID:  gym.ID,
			UserID: input.OwnerID,
			Role:   models.RoleOwner,
		}
		if err := tx.Create(&role).Error; err != nil {
			return fmt.Errorf("assign owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gym service: %w", err)
	}

	return gym, nil
}

// GetGym loads a single gym by ID.
func (s *GymService) GetGym(ctx context.Context, gymID string) (*models.Gym, error) {
	var gym models.Gym
	err := s.db.WithContext(ctx).First(&gym, "id = ?", gymID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGymNotFound
		}
		return nil, fmt.Errorf("gym service: get gym: %w", err)
	}
	return &gym, nil
}

// ListGymsForUser returns the gyms the user holds a role in. Root users see
// every gym.
func (s *GymService) ListGymsForUser(ctx context.Context, user *models.User) ([]models.Gym, error) {
	if user == nil {
		return nil, errors.New("gym service: user is required")
	}

	var gyms []models.Gym
	query := s.db.WithContext(ctx).Order("name ASC")
	if !user.IsRoot {
		query = query.
			Joins("JOIN gym_roles ON gym_roles.gym_id = gyms.id").
			Where("gym_roles.user_id = ?", user.ID)
	}
	if err := query.Find(&gyms).Error; err != nil {
		return nil, fmt.Errorf("gym service: list gyms: %w", err)
	}
	return gyms, nil
}

// UpdateGymInput carries partial gym updates. Nil fields are left unchanged.
type UpdateGymInput struct {
	Name         *string
	ContactEmail *string
	Timezone     *string
	Settings     datatypes.JSON
	IsActive     *bool
}

// UpdateGym applies a partial update to a gym.
func (s *GymService) UpdateGym(ctx context.Context, gymID string, input UpdateGymInput) (*models.Gym, error) {
	gym, err := s.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errors.New("gym service: name cannot be empty")
		}
		updates["name"] = name
	}
	if input.ContactEmail != nil {
		updates["contact_email"] = normaliseEmail(*input.ContactEmail)
	}
	if input.Timezone != nil {
		updates["timezone"] = *input.Timezone
	}
	if input.Settings != nil {
		updates["settings"] = input.Settings
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return gym, nil
	}

	if err := s.db.WithContext(ctx).Model(gym).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("gym service: update gym: %w", err)
	}
	return s.GetGym(ctx, gymID)
}

// DeactivateGym marks a gym inactive. Gyms are never hard-deleted; their
// history remains queryable.
func (s *GymService) DeactivateGym(ctx context.Context, gymID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Gym{}).
		Where("id = ?", gymID).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("gym service: deactivate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrGymNotFound
	}
	return nil
}
