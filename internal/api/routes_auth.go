package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
)

func registerAuthRoutes(public, authed *gin.RouterGroup, deps Deps) error {
	authHandler, err := handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.TOTP, deps.Audit)
	if err != nil {
		return err
	}

	auth := public.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	me := authed.Group("/auth")
	{
		me.GET("/me", authHandler.Me)
		me.PATCH("/me", authHandler.UpdateMe)
		me.POST("/password", authHandler.ChangePassword)
		me.GET("/sessions", authHandler.Sessions)
		me.POST("/sessions/revoke", authHandler.RevokeAllSessions)
		me.POST("/logout", authHandler.Logout)
		me.POST("/mfa/enroll", authHandler.MFAEnroll)
		me.POST("/mfa/verify", authHandler.MFAVerify)
	}

	return nil
}
