package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/pkg/logger"
	"github.com/repfit/repfit/pkg/mail"
	"github.com/repfit/repfit/pkg/metrics"
	"github.com/repfit/repfit/pkg/tokens"
)

const (
	defaultInviteExpiry = 72 * time.Hour
)

var (
	// ErrInviteNotFound indicates no invitation matches the provided token or ID.
	ErrInviteNotFound = errors.New("invite: not found")
	// ErrInviteExpired indicates the invitation token has expired.
	ErrInviteExpired = errors.New("invite: expired")
	// ErrInviteAlreadyAccepted signals that the invitation was already accepted.
	ErrInviteAlreadyAccepted = errors.New("invite: already accepted")
	// ErrInviteNotPending indicates the invitation is in a terminal state.
	ErrInviteNotPending = errors.New("invite: not pending")
	// ErrInvitePendingExists indicates the gym already has an active invitation
	// for the email address.
	ErrInvitePendingExists = errors.New("invite: pending invitation already exists")
	// ErrInviteEmailMismatch indicates the accepting user's email does not match
	// the invitation.
	ErrInviteEmailMismatch = errors.New("invite: email mismatch")
	// ErrAlreadyGymMember indicates the accepting user already holds a role in
	// the gym.
	ErrAlreadyGymMember = errors.New("invite: user already has a role in this gym")
	// ErrInvalidRole indicates the requested role is not recognised.
	ErrInvalidRole = errors.New("invite: invalid role")
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to build invitation links.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteExpiry overrides the invitation token lifetime.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteTokenSize adjusts the random token length in bytes.
func WithInviteTokenSize(size int) InviteOption {
	return func(s *InviteService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService manages the lifecycle of gym staff invitations.
type InviteService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}

	service := &InviteService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultInviteExpiry,
		tokenLength: tokens.DefaultLength,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateInviteInput carries the parameters for a new invitation.
type CreateInviteInput struct {
	GymID     string
	Email     string
	Role      string
	Message   string
	InvitedBy string
}

// InviteResult bundles a persisted invitation with its delivery outcome. Link
// carries the plaintext token; it is never stored. EmailWarning is set when the
// invitation persisted but the email could not be delivered.
type InviteResult struct {
	Invite       *models.GymInvitation
	Link         string
	EmailWarning string
}

// CreateInvite persists a pending invitation and dispatches the invite email.
// An email delivery failure does not fail the operation; the invitation stands
// and the result carries a warning instead.
func (s *InviteService) CreateInvite(ctx context.Context, input CreateInviteInput) (*InviteResult, error) {
	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, errors.New("invite service: email is required")
	}
	if input.GymID == "" {
		return nil, errors.New("invite service: gym id is required")
	}
	if !models.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}

	now := s.now()

	var existing int64
	err := s.db.WithContext(ctx).
		Model(&models.GymInvitation{}).
		Where("gym_id = ? AND email = ? AND status = ? AND expires_at > ?",
			input.GymID, email, models.InviteStatusPending, now).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: check existing: %w", err)
	}
	if existing > 0 {
		return nil, ErrInvitePendingExists
	}

	rawToken, err := tokens.Generate(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	invite := models.GymInvitation{
		GymID:     input.GymID,
		Email:     email,
		Role:      input.Role,
		Status:    models.InviteStatusPending,
		TokenHash: tokens.Hash(rawToken),
		ExpiresAt: now.Add(s.expiry),
		InvitedBy: strings.TrimSpace(input.InvitedBy),
	}
	if msg := strings.TrimSpace(input.Message); msg != "" {
		meta, err := json.Marshal(map[string]string{"message": msg})
		if err != nil {
			return nil, fmt.Errorf("invite service: encode metadata: %w", err)
		}
		invite.Metadata = meta
	}

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrInvitePendingExists
		}
		return nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	var gym models.Gym
	if err := s.db.WithContext(ctx).First(&gym, "id = ?", invite.GymID).Error; err == nil {
		invite.Gym = &gym
	}

	result := &InviteResult{
		Invite: &invite,
		Link:   tokens.InviteURL(s.baseURL, rawToken),
	}
	result.EmailWarning = s.deliver(ctx, &invite, result.Link)

	return result, nil
}

// VerifyToken resolves a plaintext token to its invitation, distinguishing
// unknown, expired, and already-consumed tokens. The expiry check and lookup
// evaluate against a single point in time.
func (s *InviteService) VerifyToken(ctx context.Context, token string) (*models.GymInvitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.GymInvitation
	err := s.db.WithContext(ctx).
		Preload("Gym").
		Where("token_hash = ?", tokens.Hash(token)).
		First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	switch invite.Status {
	case models.InviteStatusAccepted:
		return nil, ErrInviteAlreadyAccepted
	case models.InviteStatusRevoked, models.InviteStatusExpired:
		return nil, ErrInviteNotPending
	}

	if tokens.IsExpired(invite.ExpiresAt, s.now()) {
		return nil, ErrInviteExpired
	}

	return &invite, nil
}

// AcceptInvite consumes a pending invitation on behalf of the authenticated
// user, assigning the invited role. The status flip is a conditional update so
// concurrent accepts cannot both succeed.
func (s *InviteService) AcceptInvite(ctx context.Context, token string, user *models.User) (*models.GymInvitation, error) {
	if user == nil {
		return nil, errors.New("invite service: user is required")
	}

	invite, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if normaliseEmail(user.Email) != invite.Email {
		return nil, ErrInviteEmailMismatch
	}

	var existingRole int64
	err = s.db.WithContext(ctx).
		Model(&models.GymRole{}).
		Where("user_id = ? AND gym_id = ?", user.ID, invite.GymID).
		Count(&existingRole).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: check existing role: %w", err)
	}
	if existingRole > 0 {
		return nil, ErrAlreadyGymMember
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.GymInvitation{}).
			Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
			Updates(map[string]any{
				"status":      models.InviteStatusAccepted,
				"accepted_at": now,
				"accepted_by": user.ID,
			})
		if result.Error != nil {
			return fmt.Errorf("mark accepted: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInviteNotPending
		}

		role := models.GymRole{
			GymID:  invite.GymID,
			UserID: user.ID,
			Role:   invite.Role,
		}
		if err := tx.Create(&role).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyGymMember
			}
			return fmt.Errorf("assign role: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInviteNotPending) || errors.Is(err, ErrAlreadyGymMember) {
			return nil, err
		}
		return nil, fmt.Errorf("invite service: accept: %w", err)
	}

	invite.Status = models.InviteStatusAccepted
	invite.AcceptedAt = &now
	invite.AcceptedBy = &user.ID
	return invite, nil
}

// ResendInvite regenerates the token on an existing invitation, resets its
// expiry window, and re-sends the email. Accepted invitations cannot be
// resent; revoked and expired ones return to pending.
func (s *InviteService) ResendInvite(ctx context.Context, gymID, inviteID string) (*InviteResult, error) {
	invite, err := s.findForGym(ctx, gymID, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status == models.InviteStatusAccepted {
		return nil, ErrInviteAlreadyAccepted
	}

	rawToken, err := tokens.Generate(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	updates := map[string]any{
		"token_hash": tokens.Hash(rawToken),
		"expires_at": expiresAt,
		"status":     models.InviteStatusPending,
	}
	if err := s.db.WithContext(ctx).Model(invite).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("invite service: resend: %w", err)
	}
	invite.TokenHash = tokens.Hash(rawToken)
	invite.ExpiresAt = expiresAt
	invite.Status = models.InviteStatusPending

	result := &InviteResult{
		Invite: invite,
		Link:   tokens.InviteURL(s.baseURL, rawToken),
	}
	result.EmailWarning = s.deliver(ctx, invite, result.Link)

	return result, nil
}

// RevokeInvite cancels a pending invitation. Invitations in any other state
// are left untouched and the call reports a conflict.
func (s *InviteService) RevokeInvite(ctx context.Context, gymID, inviteID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.GymInvitation{}).
		Where("id = ? AND gym_id = ? AND status = ?", inviteID, gymID, models.InviteStatusPending).
		Update("status", models.InviteStatusRevoked)
	if result.Error != nil {
		return fmt.Errorf("invite service: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.findForGym(ctx, gymID, inviteID); err != nil {
			return err
		}
		return ErrInviteNotPending
	}
	return nil
}

// UpdateInviteInput carries mutable fields of a pending invitation.
type UpdateInviteInput struct {
	Role      string
	ExpiresAt *time.Time
}

// UpdateInvite mutates the role or expiry of a pending invitation.
func (s *InviteService) UpdateInvite(ctx context.Context, gymID, inviteID string, input UpdateInviteInput) (*models.GymInvitation, error) {
	invite, err := s.findForGym(ctx, gymID, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != models.InviteStatusPending {
		return nil, ErrInviteNotPending
	}

	updates := map[string]any{}
	if input.Role != "" {
		if !models.ValidRole(input.Role) {
			return nil, ErrInvalidRole
		}
		updates["role"] = input.Role
	}
	if input.ExpiresAt != nil {
		updates["expires_at"] = *input.ExpiresAt
	}
	if len(updates) == 0 {
		return invite, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.GymInvitation{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("invite service: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInviteNotPending
	}

	if input.Role != "" {
		invite.Role = input.Role
	}
	if input.ExpiresAt != nil {
		invite.ExpiresAt = *input.ExpiresAt
	}
	return invite, nil
}

// ListInvitesInput filters the invitation listing.
type ListInvitesInput struct {
	Status     string
	Pagination Pagination
}

// ListInvites returns a gym's invitations, newest first.
func (s *InviteService) ListInvites(ctx context.Context, gymID string, input ListInvitesInput) ([]models.GymInvitation, int64, error) {
	page := input.Pagination.Normalise()

	query := s.db.WithContext(ctx).
		Model(&models.GymInvitation{}).
		Where("gym_id = ?", gymID)
	if input.Status != "" {
		query = query.Where("status = ?", input.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("invite service: count invites: %w", err)
	}

	var invites []models.GymInvitation
	err := query.
		Order("created_at DESC").
		Limit(page.PageSize).
		Offset(page.offset()).
		Find(&invites).Error
	if err != nil {
		return nil, 0, fmt.Errorf("invite service: list invites: %w", err)
	}

	return invites, total, nil
}

// CleanupExpired flips past-expiry pending invitations to expired and returns
// how many rows changed. Triggered by an operator endpoint, never a timer.
func (s *InviteService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.GymInvitation{}).
		Where("status = ? AND expires_at < ?", models.InviteStatusPending, s.now()).
		Update("status", models.InviteStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InviteService) findForGym(ctx context.Context, gymID, inviteID string) (*models.GymInvitation, error) {
	var invite models.GymInvitation
	err := s.db.WithContext(ctx).
		Where("id = ? AND gym_id = ?", inviteID, gymID).
		First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}
	return &invite, nil
}

// deliver sends the invitation email and returns a human-readable warning when
// delivery fails. A disabled mailer is not a failure.
func (s *InviteService) deliver(ctx context.Context, invite *models.GymInvitation, link string) string {
	if s.mailer == nil {
		return ""
	}

	gymName := "your gym"
	if invite.Gym != nil && invite.Gym.Name != "" {
		gymName = invite.Gym.Name
	}

	message := mail.Message{
		To:      []string{invite.Email},
		Subject: fmt.Sprintf("You're invited to join %s on RepFit", gymName),
		Body: fmt.Sprintf(
			"Hello,\n\nYou have been invited to join %s as %s. Use the following link to accept the invitation:\n%s\n\nThe link expires on %s.\n\nIf you did not expect this email, you can ignore it.\n",
			gymName, invite.Role, link, invite.ExpiresAt.UTC().Format(time.RFC1123),
		),
	}

	if err := s.mailer.Send(ctx, message); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			metrics.InviteEmails.WithLabelValues("disabled").Inc()
			return ""
		}
		metrics.InviteEmails.WithLabelValues("failed").Inc()
		logger.Warn("invite email delivery failed",
			zap.String("invite_id", invite.ID),
			zap.String("email", invite.Email),
			zap.Error(err),
		)
		return "invitation created but the email could not be delivered"
	}

	metrics.InviteEmails.WithLabelValues("sent").Inc()
	return ""
}
