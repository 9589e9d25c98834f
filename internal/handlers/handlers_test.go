package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/repfit/repfit/internal/auth"
	"github.com/repfit/repfit/internal/auth/mfa"
	"github.com/repfit/repfit/internal/database/testutil"
	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/models"
	"github.com/repfit/repfit/internal/permissions"
	"github.com/repfit/repfit/internal/services"
	"github.com/repfit/repfit/pkg/mail"
	"github.com/repfit/repfit/pkg/response"
)

type captureMailer struct {
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, message mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message)
	return nil
}

type handlerEnv struct {
	db       *gorm.DB
	mailer   *captureMailer
	jwt      *iauth.JWTService
	sessions *iauth.SessionService
	totp     *mfa.TOTPService
	checker  *permissions.Checker

	users      *services.UserService
	gyms       *services.GymService
	members    *services.MemberService
	invites    *services.InviteService
	attendance *services.AttendanceService
	billing    *services.BillingService
	audit      *services.AuditService
}

func setupHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "handler-test-secret-32-characters!!"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)
	totp, err := mfa.NewTOTPService(db, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	checker, err := permissions.NewChecker(db)
	require.NoError(t, err)

	mailer := &captureMailer{}

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	gyms, err := services.NewGymService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, mailer,
		services.WithInviteBaseURL("https://app.repfit.test/invite/accept"),
	)
	require.NoError(t, err)
	attendance, err := services.NewAttendanceService(db)
	require.NoError(t, err)
	billing, err := services.NewBillingService(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	return &handlerEnv{
		db:         db,
		mailer:     mailer,
		jwt:        jwtSvc,
		sessions:   sessions,
		totp:       totp,
		checker:    checker,
		users:      users,
		gyms:       gyms,
		members:    members,
		invites:    invites,
		attendance: attendance,
		billing:    billing,
		audit:      audit,
	}
}

// createUser persists a user through the service so the password is usable
// for login tests.
func (e *handlerEnv) createUser(t *testing.T, email string) *models.User {
	t.Helper()

	user, err := e.users.CreateUser(context.Background(), services.CreateUserInput{
		Email:     email,
		Password:  "sup3r-secret!",
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	return user
}

func (e *handlerEnv) createGymWithOwner(t *testing.T, name string, ownerID string) *models.Gym {
	t.Helper()

	gym, err := e.gyms.CreateGym(context.Background(), services.CreateGymInput{
		Name:    name,
		OwnerID: ownerID,
	})
	require.NoError(t, err)
	return gym
}

// asUser injects the authenticated identity the way the auth middleware does.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxUserIDKey, userID)
	}
}

func performJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func dataField(t *testing.T, envelope response.Response, key string) any {
	t.Helper()

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "data is not an object")
	return data[key]
}

func timePtr(t time.Time) *time.Time { return &t }

func newAuthedRequest(method, path, accessToken string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req
}

func performRaw(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performRawJSON(t *testing.T, r http.Handler, method, path, accessToken string, body any) *httptest.ResponseRecorder {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewBuffer(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return performRaw(r, req)
}
