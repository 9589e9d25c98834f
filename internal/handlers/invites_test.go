package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/services"
	"github.com/repfit/repfit/pkg/tokens"
)

func newInviteRouter(t *testing.T, env *handlerEnv, userID string) *gin.Engine {
	t.Helper()

	handler, err := NewInviteHandler(env.invites, env.users, env.audit)
	require.NoError(t, err)

	r := gin.New()
	r.Use(asUser(userID))
	r.POST("/gyms/:gymID/invites", handler.Create)
	r.GET("/gyms/:gymID/invites", handler.List)
	r.PATCH("/gyms/:gymID/invites/:inviteID", handler.Update)
	r.POST("/gyms/:gymID/invites/:inviteID/resend", handler.Resend)
	r.DELETE("/gyms/:gymID/invites/:inviteID", handler.Revoke)
	r.GET("/auth/invite", handler.Verify)
	r.POST("/auth/invite/accept", handler.Accept)
	r.POST("/invites/cleanup", handler.Cleanup)
	return r
}

func TestInviteCreateReturnsLinkAndAudits(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	w := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeResponse(t, w)
	require.True(t, envelope.Success)
	require.Empty(t, envelope.Warnings)

	data := envelope.Data.(map[string]any)
	link, _ := data["link"].(string)
	require.NotEmpty(t, link)
	require.Len(t, env.mailer.messages, 1)

	var logs []models.AuditLog
	require.NoError(t, env.db.Where("action = ?", services.AuditInviteCreated).Find(&logs).Error)
	require.Len(t, logs, 1)
}

func TestInviteCreateEmailFailureIsWarning(t *testing.T) {
	env := setupHandlerEnv(t)
	env.mailer.err = errors.New("smtp timeout")
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	w := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})

	// The invitation persists; delivery failure is reported as a warning.
	require.Equal(t, http.StatusCreated, w.Code)
	envelope := decodeResponse(t, w)
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Warnings)

	var count int64
	require.NoError(t, env.db.Model(&models.GymInvitation{}).Where("gym_id = ?", gym.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInviteCreateDuplicatePendingConflicts(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	first := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "staff",
	})
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "CONFLICT")
}

func TestInviteCreateRejectsUnknownRole(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	w := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "janitor",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInviteVerifyReportsValidity(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	w := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	link := decodeResponse(t, w).Data.(map[string]any)["link"].(string)
	token, err := tokens.TokenFromURL(link)
	require.NoError(t, err)

	verify := performJSON(t, r, http.MethodGet, "/auth/invite?invite="+token, nil)
	require.Equal(t, http.StatusOK, verify.Code)
	envelope := decodeResponse(t, verify)
	require.Equal(t, true, dataField(t, envelope, "valid"))
	require.Equal(t, "Ironworks", dataField(t, envelope, "gym_name"))
	require.Equal(t, "trainer@ironworks.test", dataField(t, envelope, "email"))

	missing := performJSON(t, r, http.MethodGet, "/auth/invite?invite=not-a-real-token", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestInviteAcceptGrantsRole(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	trainer := env.createUser(t, "trainer@ironworks.test")

	ownerRouter := newInviteRouter(t, env, owner.ID)
	w := performJSON(t, ownerRouter, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	link := decodeResponse(t, w).Data.(map[string]any)["link"].(string)
	token, err := tokens.TokenFromURL(link)
	require.NoError(t, err)

	trainerRouter := newInviteRouter(t, env, trainer.ID)
	accept := performJSON(t, trainerRouter, http.MethodPost, "/auth/invite/accept", gin.H{"token": token})
	require.Equal(t, http.StatusOK, accept.Code)

	var role models.GymRole
	require.NoError(t, env.db.Where("gym_id = ? AND user_id = ?", gym.ID, trainer.ID).First(&role).Error)
	require.Equal(t, models.RoleTrainer, role.Role)

	// Accepting twice conflicts.
	again := performJSON(t, trainerRouter, http.MethodPost, "/auth/invite/accept", gin.H{"token": token})
	require.Equal(t, http.StatusConflict, again.Code)
}

func TestInviteAcceptEmailMismatchConflicts(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	stranger := env.createUser(t, "stranger@elsewhere.test")

	ownerRouter := newInviteRouter(t, env, owner.ID)
	w := performJSON(t, ownerRouter, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	link := decodeResponse(t, w).Data.(map[string]any)["link"].(string)
	token, err := tokens.TokenFromURL(link)
	require.NoError(t, err)

	strangerRouter := newInviteRouter(t, env, stranger.ID)
	accept := performJSON(t, strangerRouter, http.MethodPost, "/auth/invite/accept", gin.H{"token": token})
	require.Equal(t, http.StatusConflict, accept.Code)

	// Invitation is untouched by the failed accept.
	var invite models.GymInvitation
	require.NoError(t, env.db.Where("gym_id = ?", gym.ID).First(&invite).Error)
	require.Equal(t, models.InviteStatusPending, invite.Status)
}

func TestInviteResendRotatesToken(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	created := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	data := decodeResponse(t, created).Data.(map[string]any)
	inviteID := data["invite"].(map[string]any)["id"].(string)
	oldLink := data["link"].(string)

	resent := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites/"+inviteID+"/resend", nil)
	require.Equal(t, http.StatusOK, resent.Code)
	newLink := decodeResponse(t, resent).Data.(map[string]any)["link"].(string)
	require.NotEqual(t, oldLink, newLink)

	// The old token no longer verifies.
	oldToken, err := tokens.TokenFromURL(oldLink)
	require.NoError(t, err)
	verify := performJSON(t, r, http.MethodGet, "/auth/invite?invite="+oldToken, nil)
	require.Equal(t, http.StatusNotFound, verify.Code)
}

func TestInviteRevokeThenResendReturnsPending(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	created := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	inviteID := decodeResponse(t, created).Data.(map[string]any)["invite"].(map[string]any)["id"].(string)

	revoked := performJSON(t, r, http.MethodDelete, "/gyms/"+gym.ID+"/invites/"+inviteID, nil)
	require.Equal(t, http.StatusOK, revoked.Code)

	// Revoking twice conflicts.
	again := performJSON(t, r, http.MethodDelete, "/gyms/"+gym.ID+"/invites/"+inviteID, nil)
	require.Equal(t, http.StatusConflict, again.Code)

	// Resend revives the invitation as pending with a fresh token.
	resent := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites/"+inviteID+"/resend", nil)
	require.Equal(t, http.StatusOK, resent.Code)

	var invite models.GymInvitation
	require.NoError(t, env.db.First(&invite, "id = ?", inviteID).Error)
	require.Equal(t, models.InviteStatusPending, invite.Status)
}

func TestInviteListFiltersByStatus(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	for _, email := range []string{"a@ironworks.test", "b@ironworks.test"} {
		w := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
			"email": email,
			"role":  "staff",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	list := performJSON(t, r, http.MethodGet, "/gyms/"+gym.ID+"/invites?status=pending", nil)
	require.Equal(t, http.StatusOK, list.Code)
	envelope := decodeResponse(t, list)
	items := envelope.Data.([]any)
	require.Len(t, items, 2)
	require.NotNil(t, envelope.Meta)
	require.Equal(t, 2, envelope.Meta.Total)
}

func TestInviteCleanupSweepsExpired(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newInviteRouter(t, env, owner.ID)

	created := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/invites", gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	inviteID := decodeResponse(t, created).Data.(map[string]any)["invite"].(map[string]any)["id"].(string)

	// Backdate the expiry, then sweep.
	require.NoError(t, env.db.Model(&models.GymInvitation{}).
		Where("id = ?", inviteID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	swept := performJSON(t, r, http.MethodPost, "/invites/cleanup", nil)
	require.Equal(t, http.StatusOK, swept.Code)

	var invite models.GymInvitation
	require.NoError(t, env.db.First(&invite, "id = ?", inviteID).Error)
	require.Equal(t, models.InviteStatusExpired, invite.Status)
}
