package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/logger"
)

// Audit actions recorded by handlers and services.
const (
	AuditInviteCreated  = "invite.created"
	AuditInviteAccepted = "invite.accepted"
	AuditInviteRevoked  = "invite.revoked"
	AuditInviteResent   = "invite.resent"
	AuditAttendanceEdit = "attendance.edited"
	AuditRoleAssigned   = "role.assigned"
	AuditRoleRemoved    = "role.removed"
	AuditSubscription   = "billing.subscription"
	AuditLogin          = "auth.login"
)

// AuditEntry describes one auditable operation.
type AuditEntry struct {
	GymID     string
	UserID    string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	Metadata  map[string]any
}

// AuditService appends and queries the audit log. Recording is best-effort:
// a failed write is logged, never propagated into the calling operation.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record appends an audit entry.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if entry.Action == "" {
		return
	}
	if entry.Result == "" {
		entry.Result = "success"
	}

	log := models.AuditLog{
		Action:    entry.Action,
		Resource:  entry.Resource,
		Result:    entry.Result,
		IPAddress: entry.IPAddress,
	}
	if entry.GymID != "" {
		log.GymID = &entry.GymID
	}
	if entry.UserID != "" {
		log.UserID = &entry.UserID
	}
	if len(entry.Metadata) > 0 {
		if encoded, err := json.Marshal(entry.Metadata); err == nil {
			log.Metadata = string(encoded)
		}
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		logger.Error("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

// ListAuditInput filters the audit listing.
type ListAuditInput struct {
	Action     string
	UserID     string
	Pagination Pagination
}

// List returns a gym's audit entries, newest first.
func (s *AuditService) List(ctx context.Context, gymID string, input ListAuditInput) ([]models.AuditLog, int64, error) {
	page := input.Pagination.Normalise()

	query := s.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("gym_id = ?", gymID)
	if input.Action != "" {
		query = query.Where("action = ?", input.Action)
	}
	if input.UserID != "" {
		query = query.Where("user_id = ?", input.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count entries: %w", err)
	}

	var entries []models.AuditLog
	err := query.
		Order("created_at DESC").
		Limit(page.PageSize).
		Offset(page.offset()).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list entries: %w", err)
	}

	return entries, total, nil
}

// PurgeOlderThan deletes audit entries older than the retention window,
// returning the number removed.
func (s *AuditService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
