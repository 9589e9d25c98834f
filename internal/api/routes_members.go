package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

func registerMemberRoutes(authed *gin.RouterGroup, deps Deps) error {
	memberHandler, err := handlers.NewMemberHandler(deps.Members)
	if err != nil {
		return err
	}

	members := gymScoped(authed).Group("/members")
	{
		members.GET("", middleware.RequireGymPermission(deps.Checker, "member.view"), memberHandler.List)
		members.POST("", middleware.RequireGymPermission(deps.Checker, "member.create"), memberHandler.Create)
		members.GET("/:memberID", middleware.RequireGymPermission(deps.Checker, "member.view"), memberHandler.Get)
		members.PATCH("/:memberID", middleware.RequireGymPermission(deps.Checker, "member.update"), memberHandler.Update)
		members.DELETE("/:memberID", middleware.RequireGymPermission(deps.Checker, "member.delete"), memberHandler.Delete)
	}

	return nil
}
