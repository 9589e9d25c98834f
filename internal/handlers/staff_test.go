package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/repfit/repfit/internal/models"
)

func newStaffRouter(t *testing.T, env *handlerEnv, userID string) *gin.Engine {
	t.Helper()

	handler, err := NewStaffHandler(env.users, env.audit)
	require.NoError(t, err)

	r := gin.New()
	r.Use(asUser(userID))
	r.GET("/gyms/:gymID/staff", handler.List)
	r.PATCH("/gyms/:gymID/staff/:userID", handler.UpdateRole)
	r.DELETE("/gyms/:gymID/staff/:userID", handler.Remove)
	return r
}

func TestStaffRosterAndRoleChanges(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	trainer := env.createUser(t, "trainer@ironworks.test")
	require.NoError(t, env.db.Create(&models.GymRole{GymID: gym.ID, UserID: trainer.ID, Role: models.RoleTrainer}).Error)

	r := newStaffRouter(t, env, owner.ID)

	roster := performJSON(t, r, http.MethodGet, "/gyms/"+gym.ID+"/staff", nil)
	require.Equal(t, http.StatusOK, roster.Code)
	require.Len(t, decodeResponse(t, roster).Data.([]any), 2)

	promoted := performJSON(t, r, http.MethodPatch, "/gyms/"+gym.ID+"/staff/"+trainer.ID, gin.H{"role": "manager"})
	require.Equal(t, http.StatusOK, promoted.Code)
	require.Equal(t, "manager", dataField(t, decodeResponse(t, promoted), "role"))

	removed := performJSON(t, r, http.MethodDelete, "/gyms/"+gym.ID+"/staff/"+trainer.ID, nil)
	require.Equal(t, http.StatusOK, removed.Code)

	gone := performJSON(t, r, http.MethodDelete, "/gyms/"+gym.ID+"/staff/"+trainer.ID, nil)
	require.Equal(t, http.StatusNotFound, gone.Code)
}
