package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/services"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// GymHandler serves tenant CRUD.
type GymHandler struct {
	gyms  *services.GymService
	users *services.UserService
}

// NewGymHandler wires the gym endpoints.
func NewGymHandler(gyms *services.GymService, users *services.UserService) (*GymHandler, error) {
	if gyms == nil {
		return nil, errors.New("gym handler: gym service is required")
	}
	if users == nil {
		return nil, errors.New("gym handler: user service is required")
	}
	return &GymHandler{gyms: gyms, users: users}, nil
}

type gymDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Timezone     string    `json:"timezone"`
	Settings     any       `json:"settings,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func toGymDTO(gym *models.Gym) gymDTO {
	dto := gymDTO{
		ID:           gym.ID,
		Name:         gym.Name,
		ContactEmail: gym.ContactEmail,
		Timezone:     gym.Timezone,
		IsActive:     gym.IsActive,
		CreatedAt:    gym.CreatedAt,
	}
	if len(gym.Settings) > 0 {
		dto.Settings = gym.Settings
	}
	return dto
}

type createGymRequest struct {
	Name         string         `json:"name" validate:"required,max=200"`
	ContactEmail string         `json:"contact_email" validate:"omitempty,email"`
	Timezone     string         `json:"timezone" validate:"max=64"`
	Settings     map[string]any `json:"settings"`
}

// Create opens a new gym with the caller as its owner.
func (h *GymHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createGymRequest
	if !bindAndValidate(c, &req) {
		return
	}

	settings, ok := encodeSettings(c, req.Settings)
	if !ok {
		return
	}

	gym, err := h.gyms.CreateGym(requestContext(c), services.CreateGymInput{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		Timezone:     req.Timezone,
		Settings:     settings,
		OwnerID:      userID,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, toGymDTO(gym))
}

// List returns the gyms the caller belongs to. Root accounts see every gym.
func (h *GymHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	gyms, err := h.gyms.ListGymsForUser(ctx, user)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	dtos := make([]gymDTO, 0, len(gyms))
	for i := range gyms {
		dtos = append(dtos, toGymDTO(&gyms[i]))
	}
	response.Success(c, http.StatusOK, dtos)
}

// Get returns a single gym.
func (h *GymHandler) Get(c *gin.Context) {
	gym, err := h.gyms.GetGym(requestContext(c), c.Param(middleware.GymParam))
	if err != nil {
		if errors.Is(err, services.ErrGymNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toGymDTO(gym))
}

type updateGymRequest struct {
	Name         *string        `json:"name" validate:"omitempty,max=200"`
	ContactEmail *string        `json:"contact_email" validate:"omitempty,email"`
	Timezone     *string        `json:"timezone" validate:"omitempty,max=64"`
	Settings     map[string]any `json:"settings"`
}

// Update applies a partial change to gym attributes.
func (h *GymHandler) Update(c *gin.Context) {
	var req updateGymRequest
	if !bindAndValidate(c, &req) {
		return
	}

	settings, ok := encodeSettings(c, req.Settings)
	if !ok {
		return
	}

	gym, err := h.gyms.UpdateGym(requestContext(c), c.Param(middleware.GymParam), services.UpdateGymInput{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		Timezone:     req.Timezone,
		Settings:     settings,
	})
	if err != nil {
		if errors.Is(err, services.ErrGymNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, toGymDTO(gym))
}

// Delete deactivates a gym. Records under the tenant are retained.
func (h *GymHandler) Delete(c *gin.Context) {
	if err := h.gyms.DeactivateGym(requestContext(c), c.Param(middleware.GymParam)); err != nil {
		if errors.Is(err, services.ErrGymNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

// encodeSettings serialises free-form gym settings for storage. A nil map
// leaves the stored settings untouched.
func encodeSettings(c *gin.Context, settings map[string]any) (datatypes.JSON, bool) {
	if settings == nil {
		return nil, true
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("settings must be a JSON object"))
		return nil, false
	}
	return datatypes.JSON(encoded), true
}
