package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/repfit/repfit/internal/auth"
	"github.com/repfit/repfit/internal/auth/mfa"
	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/services"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// AuthHandler serves registration, login, token refresh, and MFA enrolment.
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
	totp     *mfa.TOTPService
	audit    *services.AuditService
}

// NewAuthHandler wires the authentication endpoints.
func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService, totp *mfa.TOTPService, audit *services.AuditService) (*AuthHandler, error) {
	if users == nil {
		return nil, errors.New("auth handler: user service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}
	if totp == nil {
		return nil, errors.New("auth handler: totp service is required")
	}
	if audit == nil {
		return nil, errors.New("auth handler: audit service is required")
	}
	return &AuthHandler{users: users, sessions: sessions, totp: totp, audit: audit}, nil
}

type userDTO struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone,omitempty"`
	IsRoot      bool       `json:"is_root"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserDTO(user *models.User) userDTO {
	return userDTO{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		IsRoot:      user.IsRoot,
		MFAEnabled:  user.MFAEnabled,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

type sessionResponse struct {
	User         userDTO `json:"user"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=32"`
}

// Register creates a platform account and opens a first session.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.CreateUser(ctx, services.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			response.Error(c, appErrors.NewConflict("an account with this email already exists"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user.ID, sessionMetadata(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, sessionResponse{
		User:         toUserDTO(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"max=16"`
}

// Login authenticates with email and password, plus a TOTP or backup code
// when the account has MFA enabled.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Authenticate(ctx, req.Email, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrInvalidLogin) {
			response.Error(c, appErrors.ErrInvalidCredentials)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if user.MFAEnabled {
		if req.TOTPCode == "" {
			response.Error(c, appErrors.ErrMFARequired)
			return
		}
		ok, err := h.totp.VerifyCode(user.ID, req.TOTPCode)
		if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			return
		}
		if !ok {
			ok, err = h.totp.UseBackupCode(user.ID, req.TOTPCode)
			if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
				response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
				return
			}
		}
		if !ok {
			response.Error(c, appErrors.ErrMFAInvalid)
			return
		}
	}

	pair, _, err := h.sessions.CreateSession(ctx, user.ID, sessionMetadata(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.audit.Record(ctx, services.AuditEntry{
		UserID:    user.ID,
		Action:    services.AuditLogin,
		Resource:  "user:" + user.ID,
		IPAddress: c.ClientIP(),
	})

	response.Success(c, http.StatusOK, sessionResponse{
		User:         toUserDTO(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh rotates the refresh token and mints a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, iauth.ErrSessionNotFound),
			errors.Is(err, iauth.ErrSessionExpired),
			errors.Is(err, iauth.ErrSessionRevoked):
			response.Error(c, appErrors.ErrUnauthorized)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Logout revokes the session backing the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID != "" {
		if err := h.sessions.Revoke(requestContext(c), sessionID, userID); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toUserDTO(user))
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
}

// UpdateMe applies a partial update to the caller's profile.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toUserDTO(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword replaces the caller's password and revokes every other
// session so stolen refresh tokens stop working.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	if err := h.users.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidLogin) {
			response.Error(c, appErrors.NewBadRequest("current password is incorrect"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if err := h.sessions.RevokeAll(ctx, userID); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"password_changed": true})
}

type authSessionDTO struct {
	ID         string     `json:"id"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Sessions lists the caller's refresh sessions, newest first.
func (h *AuthHandler) Sessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.sessions.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]authSessionDTO, 0, len(sessions))
	for _, s := range sessions {
		dtos = append(dtos, authSessionDTO{
			ID:         s.ID,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
			RevokedAt:  s.RevokedAt,
		})
	}
	response.Success(c, http.StatusOK, dtos)
}

// RevokeAllSessions signs the caller out everywhere.
func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeAll(requestContext(c), userID); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

type mfaEnrollResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	QRCodePNG   string   `json:"qr_code_png"`
	BackupCodes []string `json:"backup_codes"`
}

// MFAEnroll provisions a TOTP secret for the authenticated user. The secret
// stays pending until verified with a first code.
func (h *AuthHandler) MFAEnroll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	key, backupCodes, err := h.totp.Enroll(user.ID, user.Email)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	png, err := h.totp.GenerateQRCode(key)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, mfaEnrollResponse{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCodePNG:   base64.StdEncoding.EncodeToString(png),
		BackupCodes: backupCodes,
	})
}

type mfaVerifyRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// MFAVerify confirms the pending TOTP secret and switches MFA on for the
// account.
func (h *AuthHandler) MFAVerify(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req mfaVerifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	if err := h.totp.Confirm(userID, req.Code); err != nil {
		switch {
		case errors.Is(err, mfa.ErrNotEnrolled):
			response.Error(c, appErrors.NewBadRequest("enrol before verifying a code"))
		case errors.Is(err, mfa.ErrInvalidCode):
			response.Error(c, appErrors.ErrMFAInvalid)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	if err := h.users.SetMFAEnabled(ctx, userID, true); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"mfa_enabled": true})
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
