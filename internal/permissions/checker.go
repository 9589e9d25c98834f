package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

// Checker evaluates a user's permissions within a gym against the static
// role-permission table.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Check determines whether the user holds the permission within the gym,
// considering registry dependencies. Platform root users pass every check.
func (c *Checker) Check(ctx context.Context, userID, gymID, permissionID string) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("permission checker: user id is required")
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return false, fmt.Errorf("permission checker: load user: %w", err)
	}

	if user.IsRoot {
		return true, nil
	}

	if _, ok := Get(permissionID); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	gymID = strings.TrimSpace(gymID)
	if gymID == "" {
		return false, nil
	}

	role, err := c.roleInGym(ctx, userID, gymID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}

	granted, err := RoleGrants(role)
	if err != nil {
		return false, err
	}

	dependencies, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}
	for _, dep := range dependencies {
		if _, ok := granted[dep]; !ok {
			return false, nil
		}
	}

	_, ok := granted[permissionID]
	return ok, nil
}

// GetUserPermissions returns the distinct permission IDs granted to the user
// within the gym, sorted.
func (c *Checker) GetUserPermissions(ctx context.Context, userID, gymID string) ([]string, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("permission checker: user id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load user: %w", err)
	}

	if user.IsRoot {
		return AllIDs(), nil
	}

	role, err := c.roleInGym(ctx, userID, gymID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, nil
	}

	granted, err := RoleGrants(role)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(granted))
	for id := range granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Checker) roleInGym(ctx context.Context, userID, gymID string) (string, error) {
	var assignment models.GymRole
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND gym_id = ?", userID, gymID).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("permission checker: load gym role: %w", err)
	}
	return strings.ToLower(assignment.Role), nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
