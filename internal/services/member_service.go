package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
)

// ErrMemberNotFound indicates the member does not exist in the gym.
var ErrMemberNotFound = errors.New("member: not found")

// MemberOption customises MemberService behaviour.
type MemberOption func(*MemberService)

// WithMemberClock injects a custom clock primarily for testing.
func WithMemberClock(clock func() time.Time) MemberOption {
	return func(s *MemberService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MemberService manages gym membership records.
type MemberService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, opts ...MemberOption) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	service := &MemberService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateMemberInput carries the parameters for a new member record.
type CreateMemberInput struct {
	GymID     string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Notes     string
	UserID    string
	JoinedAt  *time.Time
}

// CreateMember adds a member record to a gym.
func (s *MemberService) CreateMember(ctx context.Context, input CreateMemberInput) (*models.Member, error) {
	if input.GymID == "" {
		return nil, errors.New("member service: gym id is required")
	}
	firstName := strings.TrimSpace(input.FirstName)
	if firstName == "" {
		return nil, errors.New("member service: first name is required")
	}

	joinedAt := s.now()
	if input.JoinedAt != nil {
		joinedAt = *input.JoinedAt
	}

	member := &models.Member{
		GymID:     input.GymID,
		FirstName: firstName,
		LastName:  strings.TrimSpace(input.LastName),
		Email:     normaliseEmail(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Notes:     input.Notes,
		IsActive:  true,
		JoinedAt:  joinedAt,
	}
	if input.UserID != "" {
		member.UserID = &input.UserID
	}

	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, fmt.Errorf("member service: create member: %w", err)
	}
	return member, nil
}

// GetMember loads a member scoped to a gym.
func (s *MemberService) GetMember(ctx context.Context, gymID, memberID string) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).
		Where("id = ? AND gym_id = ?", memberID, gymID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("member service: get member: %w", err)
	}
	return &member, nil
}

// FindByUser resolves the member record linked to a platform user in a gym.
func (s *MemberService) FindByUser(ctx context.Context, gymID, userID string) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).
		Where("gym_id = ? AND user_id = ?", gymID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("member service: find by user: %w", err)
	}
	return &member, nil
}

// ListMembersInput filters the member listing.
type ListMembersInput struct {
	Search     string
	ActiveOnly bool
	Pagination Pagination
}

// ListMembers returns a gym's members filtered by an optional search term
// matched against name and email.
func (s *MemberService) ListMembers(ctx context.Context, gymID string, input ListMembersInput) ([]models.Member, int64, error) {
	page := input.Pagination.Normalise()

	query := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("gym_id = ?", gymID)
	if input.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if term := strings.TrimSpace(input.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("member service: count members: %w", err)
	}

	var members []models.Member
	err := query.
		Order("first_name ASC, last_name ASC").
		Limit(page.PageSize).
		Offset(page.offset()).
		Find(&members).Error
	if err != nil {
		return nil, 0, fmt.Errorf("member service: list members: %w", err)
	}

	return members, total, nil
}

// UpdateMemberInput carries partial member updates. Nil fields are left
// unchanged.
type UpdateMemberInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Notes     *string
	IsActive  *bool
	UserID    *string
}

// UpdateMember applies a partial update to a member record.
func (s *MemberService) UpdateMember(ctx context.Context, gymID, memberID string, input UpdateMemberInput) (*models.Member, error) {
	member, err := s.GetMember(ctx, gymID, memberID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		name := strings.TrimSpace(*input.FirstName)
		if name == "" {
			return nil, errors.New("member service: first name cannot be empty")
		}
		updates["first_name"] = name
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Email != nil {
		updates["email"] = normaliseEmail(*input.Email)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.UserID != nil {
		if *input.UserID == "" {
			updates["user_id"] = nil
		} else {
			updates["user_id"] = *input.UserID
		}
	}
	if len(updates) == 0 {
		return member, nil
	}

	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("member service: update member: %w", err)
	}
	return s.GetMember(ctx, gymID, memberID)
}

// ArchiveMember deactivates a member record. Members are archived rather than
// hard-deleted so their attendance history survives.
func (s *MemberService) ArchiveMember(ctx context.Context, gymID, memberID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND gym_id = ?", memberID, gymID).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("member service: archive member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}
