package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/repfit/repfit/internal/models"
)

func newGymRouter(t *testing.T, env *handlerEnv, userID string) *gin.Engine {
	t.Helper()

	handler, err := NewGymHandler(env.gyms, env.users)
	require.NoError(t, err)

	r := gin.New()
	r.Use(asUser(userID))
	r.POST("/gyms", handler.Create)
	r.GET("/gyms", handler.List)
	r.GET("/gyms/:gymID", handler.Get)
	r.PATCH("/gyms/:gymID", handler.Update)
	r.DELETE("/gyms/:gymID", handler.Delete)
	return r
}

func TestGymCreateAssignsOwner(t *testing.T) {
	env := setupHandlerEnv(t)
	user := env.createUser(t, "owner@ironworks.test")
	r := newGymRouter(t, env, user.ID)

	w := performJSON(t, r, http.MethodPost, "/gyms", gin.H{
		"name":     "Ironworks",
		"timezone": "Europe/Berlin",
		"settings": gin.H{"checkin_kiosk": true},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	gymID := dataField(t, decodeResponse(t, w), "id").(string)

	var role models.GymRole
	require.NoError(t, env.db.Where("gym_id = ? AND user_id = ?", gymID, user.ID).First(&role).Error)
	require.Equal(t, models.RoleOwner, role.Role)
}

func TestGymListScopedToMembership(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	env.createGymWithOwner(t, "Ironworks", owner.ID)

	other := env.createUser(t, "other@elsewhere.test")
	env.createGymWithOwner(t, "Elsewhere", other.ID)

	r := newGymRouter(t, env, owner.ID)
	w := performJSON(t, r, http.MethodGet, "/gyms", nil)
	require.Equal(t, http.StatusOK, w.Code)

	items := decodeResponse(t, w).Data.([]any)
	require.Len(t, items, 1)
	require.Equal(t, "Ironworks", items[0].(map[string]any)["name"])
}

func TestGymUpdateAndDeactivate(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newGymRouter(t, env, owner.ID)

	w := performJSON(t, r, http.MethodPatch, "/gyms/"+gym.ID, gin.H{"name": "Ironworks South"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Ironworks South", dataField(t, decodeResponse(t, w), "name"))

	del := performJSON(t, r, http.MethodDelete, "/gyms/"+gym.ID, nil)
	require.Equal(t, http.StatusOK, del.Code)

	var stored models.Gym
	require.NoError(t, env.db.First(&stored, "id = ?", gym.ID).Error)
	require.False(t, stored.IsActive)

	missing := performJSON(t, r, http.MethodGet, "/gyms/unknown-id", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}
