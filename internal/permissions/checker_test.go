package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

func openCheckerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Gym{}, &models.GymRole{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func seedUserWithRole(t *testing.T, db *gorm.DB, role string) (userID, gymID string) {
	t.Helper()

	user := &models.User{Email: role + "@example.com", Password: "hashed"}
	require.NoError(t, db.Create(user).Error)

	gym := &models.Gym{Name: "Iron Works"}
	require.NoError(t, db.Create(gym).Error)

	if role != "" {
		require.NoError(t, db.Create(&models.GymRole{
			UserID: user.ID,
			GymID:  gym.ID,
			Role:   role,
		}).Error)
	}

	return user.ID, gym.ID
}

func TestCheckerOwnerHasEverything(t *testing.T) {
	db := openCheckerTestDB(t)
	userID, gymID := seedUserWithRole(t, db, models.RoleOwner)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	for _, perm := range []string{"gym.manage", "billing.manage", "staff.delete"} {
		allowed, err := checker.Check(context.Background(), userID, gymID, perm)
		require.NoError(t, err)
		require.True(t, allowed, "owner should hold %s", perm)
	}
}

func TestCheckerStaffScope(t *testing.T) {
	db := openCheckerTestDB(t)
	userID, gymID := seedUserWithRole(t, db, models.RoleStaff)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	allowed, err := checker.Check(context.Background(), userID, gymID, "attendance.edit")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = checker.Check(context.Background(), userID, gymID, "staff.delete")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = checker.Check(context.Background(), userID, gymID, "billing.view")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCheckerNoRoleInGym(t *testing.T) {
	db := openCheckerTestDB(t)
	userID, gymID := seedUserWithRole(t, db, "")

	checker, err := NewChecker(db)
	require.NoError(t, err)

	allowed, err := checker.Check(context.Background(), userID, gymID, "member.view")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCheckerRootBypassesRoles(t *testing.T) {
	db := openCheckerTestDB(t)

	root := &models.User{Email: "root@repfit.io", Password: "hashed", IsRoot: true}
	require.NoError(t, db.Create(root).Error)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	allowed, err := checker.Check(context.Background(), root.ID, "any-gym", "billing.manage")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCheckerUnknownPermission(t *testing.T) {
	db := openCheckerTestDB(t)
	userID, gymID := seedUserWithRole(t, db, models.RoleManager)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	_, err = checker.Check(context.Background(), userID, gymID, "spa.manage")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestGetUserPermissionsSorted(t *testing.T) {
	db := openCheckerTestDB(t)
	userID, gymID := seedUserWithRole(t, db, models.RoleTrainer)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	perms, err := checker.GetUserPermissions(context.Background(), userID, gymID)
	require.NoError(t, err)
	require.Equal(t, []string{"attendance.record", "attendance.view", "gym.view", "member.view"}, perms)
}
