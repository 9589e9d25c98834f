package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

func registerAuditRoutes(authed *gin.RouterGroup, deps Deps) error {
	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return err
	}

	gymScoped(authed).GET("/audit", middleware.RequireGymPermission(deps.Checker, "audit.view"), auditHandler.List)

	return nil
}
