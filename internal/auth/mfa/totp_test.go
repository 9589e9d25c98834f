package mfa

import (
	"bytes"
	"encoding/json"
	"image/png"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/database/testutil"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/crypto"
)

func TestEnrollStoresEncryptedData(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	user := createTestUser(t, db, "alice@example.com")
	key, backup, service := enrollTestUser(t, db, user)

	require.NotNil(t, key)
	require.Len(t, backup, defaultBackupCodeCount)

	var stored models.MFASecret
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.NotEmpty(t, stored.EncryptedSecret)
	require.NotEqual(t, key.Secret(), stored.EncryptedSecret)
	require.Nil(t, stored.ConfirmedAt)

	decrypted, err := crypto.Decrypt(stored.EncryptedSecret, service.encryptionKey)
	require.NoError(t, err)
	require.Equal(t, key.Secret(), string(decrypted))

	var hashed []string
	require.NoError(t, json.Unmarshal([]byte(stored.BackupCodes), &hashed))
	require.Len(t, hashed, defaultBackupCodeCount)
	for i := range hashed {
		require.True(t, crypto.VerifyPassword(hashed[i], backup[i]))
	}
}

func TestConfirmMarksSecretConfirmed(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "bob@example.com")
	key, _, service := enrollTestUser(t, db, user)

	confirmed, err := service.IsConfirmed(user.ID)
	require.NoError(t, err)
	require.False(t, confirmed)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	require.NoError(t, service.Confirm(user.ID, code))

	confirmed, err = service.IsConfirmed(user.ID)
	require.NoError(t, err)
	require.True(t, confirmed)

	require.Error(t, service.Confirm(user.ID, "000000"))
}

func TestVerifyCode(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "carol@example.com")
	key, _, service := enrollTestUser(t, db, user)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	valid, err := service.VerifyCode(user.ID, code)
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = service.VerifyCode(user.ID, "000000")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyCodeWithoutEnrollment(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "dave@example.com")

	key := []byte("12345678901234567890123456789012")
	service, err := NewTOTPService(db, key)
	require.NoError(t, err)

	_, err = service.VerifyCode(user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestUseBackupCodeConsumesCode(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "erin@example.com")
	_, backup, service := enrollTestUser(t, db, user)

	ok, err := service.UseBackupCode(user.ID, backup[0])
	require.NoError(t, err)
	require.True(t, ok)

	count, err := service.RemainingBackupCodes(user.ID)
	require.NoError(t, err)
	require.Equal(t, defaultBackupCodeCount-1, count)

	ok, err = service.UseBackupCode(user.ID, backup[0])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisableRemovesSecret(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "frank@example.com")
	_, _, service := enrollTestUser(t, db, user)

	require.NoError(t, service.Disable(user.ID))

	confirmed, err := service.IsConfirmed(user.ID)
	require.NoError(t, err)
	require.False(t, confirmed)

	_, err = service.VerifyCode(user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestGenerateQRCode(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	user := createTestUser(t, db, "grace@example.com")
	key, _, service := enrollTestUser(t, db, user)

	data, err := service.GenerateQRCode(key)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func enrollTestUser(t *testing.T, db *gorm.DB, user *models.User) (*otp.Key, []string, *TOTPService) {
	t.Helper()

	key := []byte("12345678901234567890123456789012")
	service, err := NewTOTPService(db, key, WithIssuer("RepFit Test"))
	require.NoError(t, err)

	totpKey, backupCodes, err := service.Enroll(user.ID, user.Email)
	require.NoError(t, err)

	return totpKey, backupCodes, service
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Email:     email,
		Password:  hashed,
		FirstName: "Test",
		LastName:  "User",
		IsActive:  true,
	}

	require.NoError(t, db.Create(user).Error)
	return user
}
