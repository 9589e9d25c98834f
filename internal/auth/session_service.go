package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/tokens"
)

const (
	// DefaultRefreshTTL is the fallback refresh-token lifetime.
	DefaultRefreshTTL = 30 * 24 * time.Hour
	// DefaultRefreshLength is the refresh-token entropy in bytes.
	DefaultRefreshLength = 48
)

var (
	// ErrSessionNotFound indicates no session matches the supplied token or ID.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired indicates the refresh token is past its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionRevoked indicates the session was explicitly revoked.
	ErrSessionRevoked = errors.New("session: revoked")
)

// SessionMetadata captures request attributes recorded on new sessions.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair bundles the access and refresh tokens returned to clients.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionConfig customises the session service.
type SessionConfig struct {
	RefreshTTL    time.Duration
	RefreshLength int
	Clock         func() time.Time
}

// SessionService manages DB-backed refresh sessions and token rotation.
type SessionService struct {
	db            *gorm.DB
	jwt           *JWTService
	refreshTTL    time.Duration
	refreshLength int
	now           func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, jwt *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	svc := &SessionService{
		db:            db,
		jwt:           jwt,
		refreshTTL:    cfg.RefreshTTL,
		refreshLength: cfg.RefreshLength,
		now:           cfg.Clock,
	}
	if svc.refreshTTL <= 0 {
		svc.refreshTTL = DefaultRefreshTTL
	}
	if svc.refreshLength <= 0 {
		svc.refreshLength = DefaultRefreshLength
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	return svc, nil
}

// CreateSession opens a refresh session for the user and issues a token pair.
func (s *SessionService) CreateSession(ctx context.Context, userID string, meta SessionMetadata) (TokenPair, *models.AuthSession, error) {
	if userID == "" {
		return TokenPair{}, nil, errors.New("session service: user id is required")
	}

	refresh, err := tokens.Generate(s.refreshLength)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	now := s.now()
	session := &models.AuthSession{
		UserID:       userID,
		RefreshToken: refresh,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		ExpiresAt:    now.Add(s.refreshTTL),
		LastUsedAt:   now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{UserID: userID, SessionID: session.ID})
	if err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, session, nil
}

// Refresh validates the refresh token and rotates it, issuing a new pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *models.AuthSession, error) {
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionNotFound
	}

	var session models.AuthSession
	err := s.db.WithContext(ctx).
		Where("refresh_token = ?", refreshToken).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, nil, ErrSessionNotFound
		}
		return TokenPair{}, nil, fmt.Errorf("session service: find session: %w", err)
	}

	now := s.now()
	if session.RevokedAt != nil {
		return TokenPair{}, nil, ErrSessionRevoked
	}
	if session.ExpiresAt.Before(now) {
		return TokenPair{}, nil, ErrSessionExpired
	}

	rotated, err := tokens.Generate(s.refreshLength)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: rotate refresh token: %w", err)
	}

	updates := map[string]any{
		"refresh_token": rotated,
		"last_used_at":  now,
		"expires_at":    now.Add(s.refreshTTL),
	}
	if err := s.db.WithContext(ctx).Model(&session).Updates(updates).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: rotate session: %w", err)
	}
	session.RefreshToken = rotated
	session.LastUsedAt = now
	session.ExpiresAt = now.Add(s.refreshTTL)

	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{UserID: session.UserID, SessionID: session.ID})
	if err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{AccessToken: access, RefreshToken: rotated}, &session, nil
}

// Revoke marks a single session revoked. Sessions can only be revoked by
// their owning user.
func (s *SessionService) Revoke(ctx context.Context, sessionID, userID string) error {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.AuthSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("session service: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAll revokes every active session belonging to the user.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	now := s.now()
	return s.db.WithContext(ctx).
		Model(&models.AuthSession{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
}

// PurgeExpired deletes sessions past expiry or revoked, returning the count.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", now).
		Delete(&models.AuthSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListForUser returns the user's sessions, newest first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]models.AuthSession, error) {
	var sessions []models.AuthSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}
	return sessions, nil
}
