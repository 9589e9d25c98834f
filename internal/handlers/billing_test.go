package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newBillingRouter(t *testing.T, env *handlerEnv, userID string) *gin.Engine {
	t.Helper()

	handler, err := NewBillingHandler(env.billing, env.audit)
	require.NoError(t, err)

	r := gin.New()
	r.Use(asUser(userID))
	r.GET("/plans", handler.ListPlans)
	r.GET("/gyms/:gymID/billing", handler.GetSubscription)
	r.POST("/gyms/:gymID/billing/subscribe", handler.Subscribe)
	r.POST("/gyms/:gymID/billing/cancel", handler.Cancel)
	return r
}

func TestBillingSubscribeAndCancel(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newBillingRouter(t, env, owner.ID)

	plans := performJSON(t, r, http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, plans.Code)
	items := decodeResponse(t, plans).Data.([]any)
	require.NotEmpty(t, items)
	planCode := items[0].(map[string]any)["code"].(string)

	// No subscription yet.
	none := performJSON(t, r, http.MethodGet, "/gyms/"+gym.ID+"/billing", nil)
	require.Equal(t, http.StatusNotFound, none.Code)

	sub := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/subscribe", gin.H{
		"plan_code":    planCode,
		"provider":     "stripe",
		"provider_ref": "sub_12345",
	})
	require.Equal(t, http.StatusCreated, sub.Code)
	require.Equal(t, "active", dataField(t, decodeResponse(t, sub), "status"))

	current := performJSON(t, r, http.MethodGet, "/gyms/"+gym.ID+"/billing", nil)
	require.Equal(t, http.StatusOK, current.Code)

	cancelled := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/cancel", nil)
	require.Equal(t, http.StatusOK, cancelled.Code)
	require.Equal(t, "cancelled", dataField(t, decodeResponse(t, cancelled), "status"))

	// Cancelling twice conflicts.
	again := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/cancel", nil)
	require.Equal(t, http.StatusConflict, again.Code)
}

func TestBillingSubscribePeriodEnd(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newBillingRouter(t, env, owner.ID)

	plans := performJSON(t, r, http.MethodGet, "/plans", nil)
	planCode := decodeResponse(t, plans).Data.([]any)[0].(map[string]any)["code"].(string)

	// An explicit period end is stored as supplied.
	periodEnd := time.Now().AddDate(1, 0, 0).UTC().Truncate(time.Second)
	explicit := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/subscribe", gin.H{
		"plan_code":          planCode,
		"provider":           "stripe",
		"current_period_end": periodEnd.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, explicit.Code)
	stored, err := time.Parse(time.RFC3339, dataField(t, decodeResponse(t, explicit), "current_period_end").(string))
	require.NoError(t, err)
	require.True(t, stored.Equal(periodEnd))

	// Omitting it falls back to the service default, one month out.
	defaulted := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/subscribe", gin.H{
		"plan_code": planCode,
		"provider":  "stripe",
	})
	require.Equal(t, http.StatusCreated, defaulted.Code)
	stored, err = time.Parse(time.RFC3339, dataField(t, decodeResponse(t, defaulted), "current_period_end").(string))
	require.NoError(t, err)
	require.True(t, stored.After(time.Now()))
}

func TestBillingRejectsUnknownProviderAndPlan(t *testing.T) {
	env := setupHandlerEnv(t)
	owner := env.createUser(t, "owner@ironworks.test")
	gym := env.createGymWithOwner(t, "Ironworks", owner.ID)
	r := newBillingRouter(t, env, owner.ID)

	bad := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/subscribe", gin.H{
		"plan_code": "plan-starter",
		"provider":  "paypal",
	})
	require.Equal(t, http.StatusBadRequest, bad.Code)

	missing := performJSON(t, r, http.MethodPost, "/gyms/"+gym.ID+"/billing/subscribe", gin.H{
		"plan_code": "plan-unknown",
		"provider":  "stripe",
	})
	require.Equal(t, http.StatusNotFound, missing.Code)
}
