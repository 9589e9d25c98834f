package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/crypto"
	"github.com/repfit/repfit/pkg/metrics"
)

var (
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user: not found")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("user: email already registered")
	// ErrInvalidLogin indicates the credentials do not match or the account is
	// inactive. The two cases are deliberately indistinguishable to callers.
	ErrInvalidLogin = errors.New("user: invalid credentials")
	// ErrRoleNotFound indicates the user holds no role in the gym.
	ErrRoleNotFound = errors.New("user: role not found")
)

// UserOption customises UserService behaviour.
type UserOption func(*UserService)

// WithUserClock injects a custom clock primarily for testing.
func WithUserClock(clock func() time.Time) UserOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UserService manages platform accounts and their per-gym roles.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	service := &UserService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateUserInput carries the parameters for a new account.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	IsRoot    bool
}

// CreateUser registers a platform account with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, errors.New("user service: email is required")
	}
	if len(input.Password) < 8 {
		return nil, errors.New("user service: password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Phone:     strings.TrimSpace(input.Phone),
		IsRoot:    input.IsRoot,
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the email/password pair and records the login. Failed
// attempts never reveal whether the account exists.
func (s *UserService) Authenticate(ctx context.Context, email, password, ip string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, ErrInvalidLogin
		}
		return nil, err
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidLogin
	}

	now := s.now()
	updates := map[string]any{"last_login_at": now, "last_login_ip": ip}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now
	user.LastLoginIP = ip

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// GetByID loads a user by ID.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// GetByEmail loads a user by normalised email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normaliseEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: get user by email: %w", err)
	}
	return &user, nil
}

// UpdateProfileInput carries partial profile updates.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// UpdateProfile applies a partial update to the user's profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}
	return s.GetByID(ctx, userID)
}

// ChangePassword verifies the current password and replaces it.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.Password, current) {
		return ErrInvalidLogin
	}
	if len(next) < 8 {
		return errors.New("user service: password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(next)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: change password: %w", err)
	}
	return nil
}

// SetMFAEnabled toggles the MFA flag on the account.
func (s *UserService) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("mfa_enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("user service: set mfa: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AssignRole grants or changes the user's role in a gym. A user holds at most
// one role per gym.
func (s *UserService) AssignRole(ctx context.Context, gymID, userID, role string) (*models.GymRole, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	var existing models.GymRole
	err := s.db.WithContext(ctx).
		Where("gym_id = ? AND user_id = ?", gymID, userID).
		First(&existing).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&existing).Update("role", role).Error; err != nil {
			return nil, fmt.Errorf("user service: update role: %w", err)
		}
		existing.Role = role
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		assigned := models.GymRole{GymID: gymID, UserID: userID, Role: role}
		if err := s.db.WithContext(ctx).Create(&assigned).Error; err != nil {
			return nil, fmt.Errorf("user service: assign role: %w", err)
		}
		return &assigned, nil
	default:
		return nil, fmt.Errorf("user service: find role: %w", err)
	}
}

// RemoveRole revokes the user's role in a gym.
func (s *UserService) RemoveRole(ctx context.Context, gymID, userID string) error {
	result := s.db.WithContext(ctx).
		Where("gym_id = ? AND user_id = ?", gymID, userID).
		Delete(&models.GymRole{})
	if result.Error != nil {
		return fmt.Errorf("user service: remove role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// RoleInGym returns the user's role in a gym.
func (s *UserService) RoleInGym(ctx context.Context, gymID, userID string) (string, error) {
	var role models.GymRole
	err := s.db.WithContext(ctx).
		Where("gym_id = ? AND user_id = ?", gymID, userID).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("user service: role in gym: %w", err)
	}
	return role.Role, nil
}

// ListStaff returns the gym's staff roster: every role assignment except
// plain members, with the user preloaded.
func (s *UserService) ListStaff(ctx context.Context, gymID string) ([]models.GymRole, error) {
	var roles []models.GymRole
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("gym_id = ? AND role <> ?", gymID, models.RoleMember).
		Order("role ASC").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("user service: list staff: %w", err)
	}
	return roles, nil
}
