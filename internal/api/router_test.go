package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/repfit/repfit/internal/auth"
	"github.com/repfit/repfit/internal/auth/mfa"
	"github.com/repfit/repfit/internal/database/testutil"
	"github.com/repfit/repfit/internal/permissions"
	"github.com/repfit/repfit/internal/realtime"
	"github.com/repfit/repfit/internal/services"
	"github.com/repfit/repfit/pkg/mail"
	"github.com/repfit/repfit/pkg/response"
	"github.com/repfit/repfit/pkg/tokens"
)

type discardMailer struct{}

func (discardMailer) Send(context.Context, mail.Message) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret-32-characters!!"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)
	totp, err := mfa.NewTOTPService(db, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	checker, err := permissions.NewChecker(db)
	require.NoError(t, err)

	hub := realtime.NewHub()

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	gyms, err := services.NewGymService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, discardMailer{},
		services.WithInviteBaseURL("https://app.repfit.test/invite/accept"),
	)
	require.NoError(t, err)
	attendance, err := services.NewAttendanceService(db,
		services.WithAttendanceEvents(hub.Publish),
	)
	require.NoError(t, err)
	billing, err := services.NewBillingService(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	r, err := NewRouter(Deps{
		DB:         db,
		JWT:        jwtSvc,
		Sessions:   sessions,
		TOTP:       totp,
		Checker:    checker,
		Hub:        hub,
		Users:      users,
		Gyms:       gyms,
		Members:    members,
		Invites:    invites,
		Attendance: attendance,
		Billing:    billing,
		Audit:      audit,
	})
	require.NoError(t, err)
	return r, db
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func payload(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, _ := envelope.Data.(map[string]any)
	return data
}

func registerAccount(t *testing.T, r http.Handler, email string) string {
	t.Helper()

	w := do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":      email,
		"password":   "sup3r-secret!",
		"first_name": "Test",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return payload(t, w)["access_token"].(string)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	r, _ := newTestRouter(t)

	health := do(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, health.Code)

	metrics := do(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, metrics.Code)

	missing := do(t, r, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Contains(t, missing.Body.String(), "NOT_FOUND")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/gyms", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestInviteToAttendanceFlow walks the primary product journey end to end:
// owner signs up, opens a gym, invites a trainer, the trainer accepts and
// checks in, and the owner sees the session in the gym listing.
func TestInviteToAttendanceFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	ownerToken := registerAccount(t, r, "owner@ironworks.test")

	created := do(t, r, http.MethodPost, "/api/gyms", ownerToken, gin.H{"name": "Ironworks"})
	require.Equal(t, http.StatusCreated, created.Code)
	gymID := payload(t, created)["id"].(string)

	invited := do(t, r, http.MethodPost, "/api/gyms/"+gymID+"/invites", ownerToken, gin.H{
		"email": "trainer@ironworks.test",
		"role":  "trainer",
	})
	require.Equal(t, http.StatusCreated, invited.Code)
	link := payload(t, invited)["link"].(string)
	token, err := tokens.TokenFromURL(link)
	require.NoError(t, err)

	// Public verification before signup.
	verify := do(t, r, http.MethodGet, "/api/auth/invite?invite="+token, "", nil)
	require.Equal(t, http.StatusOK, verify.Code)
	require.Equal(t, true, payload(t, verify)["valid"])

	trainerToken := registerAccount(t, r, "trainer@ironworks.test")
	accepted := do(t, r, http.MethodPost, "/api/auth/invite/accept", trainerToken, gin.H{"token": token})
	require.Equal(t, http.StatusOK, accepted.Code)

	// The trainer checks in as staff.
	checkin := do(t, r, http.MethodPost, "/api/attendance/checkin", trainerToken, gin.H{"gym_id": gymID})
	require.Equal(t, http.StatusCreated, checkin.Code)

	list := do(t, r, http.MethodGet, "/api/gyms/"+gymID+"/attendance?open=true", ownerToken, nil)
	require.Equal(t, http.StatusOK, list.Code)
	require.Contains(t, list.Body.String(), "staff")

	checkout := do(t, r, http.MethodPost, "/api/attendance/checkout", trainerToken, gin.H{"gym_id": gymID})
	require.Equal(t, http.StatusOK, checkout.Code)

	// Audit trail captured the invite lifecycle.
	audit := do(t, r, http.MethodGet, "/api/gyms/"+gymID+"/audit", ownerToken, nil)
	require.Equal(t, http.StatusOK, audit.Code)
	require.Contains(t, audit.Body.String(), "invite.created")
	require.Contains(t, audit.Body.String(), "invite.accepted")
}

func TestPermissionGuardOnGymRoutes(t *testing.T) {
	r, db := newTestRouter(t)

	ownerToken := registerAccount(t, r, "owner@ironworks.test")
	created := do(t, r, http.MethodPost, "/api/gyms", ownerToken, gin.H{"name": "Ironworks"})
	gymID := payload(t, created)["id"].(string)

	outsiderToken := registerAccount(t, r, "outsider@elsewhere.test")

	w := do(t, r, http.MethodGet, "/api/gyms/"+gymID+"/members", outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Root bypasses tenant membership for the cleanup endpoint.
	cleanupDenied := do(t, r, http.MethodPost, "/api/invites/cleanup", outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, cleanupDenied.Code)

	require.NoError(t, db.Exec("UPDATE users SET is_root = 1 WHERE email = ?", "outsider@elsewhere.test").Error)
	cleanup := do(t, r, http.MethodPost, "/api/invites/cleanup", outsiderToken, nil)
	require.Equal(t, http.StatusOK, cleanup.Code)
}
