package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/repfit/repfit/internal/auth"
	"github.com/repfit/repfit/internal/auth/mfa"
	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/permissions"
	"github.com/repfit/repfit/internal/realtime"
	"github.com/repfit/repfit/internal/services"
)

// Deps bundles the wired services the router mounts handlers onto.
type Deps struct {
	DB         *gorm.DB
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	TOTP       *mfa.TOTPService
	Checker    *permissions.Checker
	Hub        *realtime.Hub
	Users      *services.UserService
	Gyms       *services.GymService
	Members    *services.MemberService
	Invites    *services.InviteService
	Attendance *services.AttendanceService
	Billing    *services.BillingService
	Audit      *services.AuditService
}

func (d Deps) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("api: db is required")
	case d.JWT == nil:
		return errors.New("api: jwt service is required")
	case d.Sessions == nil:
		return errors.New("api: session service is required")
	case d.TOTP == nil:
		return errors.New("api: totp service is required")
	case d.Checker == nil:
		return errors.New("api: permission checker is required")
	case d.Hub == nil:
		return errors.New("api: realtime hub is required")
	case d.Users == nil, d.Gyms == nil, d.Members == nil, d.Invites == nil,
		d.Attendance == nil, d.Billing == nil, d.Audit == nil:
		return errors.New("api: all services are required")
	}
	return nil
}

// NewRouter builds the Gin engine, wires the middleware chain, and registers
// every route group.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Baseline limit per IP and path; invite resend carries its own tighter one.
	r.Use(middleware.RateLimit(300, time.Minute))
	r.NoRoute(middleware.NotFoundHandler)

	healthHandler, err := handlers.NewHealthHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	r.GET("/health", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/api")
	authed := r.Group("/api")
	authed.Use(middleware.Auth(deps.JWT))

	if err := registerAuthRoutes(public, authed, deps); err != nil {
		return nil, err
	}
	if err := registerGymRoutes(authed, deps); err != nil {
		return nil, err
	}
	if err := registerInviteRoutes(public, authed, deps); err != nil {
		return nil, err
	}
	if err := registerMemberRoutes(authed, deps); err != nil {
		return nil, err
	}
	if err := registerAttendanceRoutes(authed, deps); err != nil {
		return nil, err
	}
	if err := registerBillingRoutes(authed, deps); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(authed, deps); err != nil {
		return nil, err
	}

	return r, nil
}

// gymScoped opens the tenant-scoped route group shared by the per-gym route
// files.
func gymScoped(authed *gin.RouterGroup) *gin.RouterGroup {
	return authed.Group("/gyms/:" + middleware.GymParam)
}
