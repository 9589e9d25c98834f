package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

// resendBudget bounds how often a single client can trigger invite emails.
const (
	resendBudget = 5
	resendWindow = time.Minute
)

func registerInviteRoutes(public, authed *gin.RouterGroup, deps Deps) error {
	inviteHandler, err := handlers.NewInviteHandler(deps.Invites, deps.Users, deps.Audit)
	if err != nil {
		return err
	}

	// Token verification is public so signup pages can validate links before
	// an account exists.
	public.GET("/auth/invite", inviteHandler.Verify)
	authed.POST("/auth/invite/accept", inviteHandler.Accept)

	gym := gymScoped(authed)
	invites := gym.Group("/invites")
	{
		invites.GET("", middleware.RequireGymPermission(deps.Checker, "staff.view"), inviteHandler.List)
		invites.POST("", middleware.RequireGymPermission(deps.Checker, "staff.create"), inviteHandler.Create)
		invites.PATCH("/:inviteID", middleware.RequireGymPermission(deps.Checker, "staff.update"), inviteHandler.Update)
		invites.DELETE("/:inviteID", middleware.RequireGymPermission(deps.Checker, "staff.delete"), inviteHandler.Revoke)
		invites.POST("/:inviteID/resend",
			middleware.RateLimit(resendBudget, resendWindow),
			middleware.RequireGymPermission(deps.Checker, "staff.create"),
			inviteHandler.Resend,
		)
	}

	// The expiry sweep is platform-wide and restricted to root accounts.
	authed.POST("/invites/cleanup", middleware.RequireRoot(rootLookup(deps)), inviteHandler.Cleanup)

	return nil
}

func rootLookup(deps Deps) func(c *gin.Context) (bool, error) {
	return func(c *gin.Context) (bool, error) {
		userID, ok := middleware.UserID(c)
		if !ok {
			return false, nil
		}
		user, err := deps.Users.GetByID(c.Request.Context(), userID)
		if err != nil {
			return false, err
		}
		return user.IsRoot, nil
	}
}
