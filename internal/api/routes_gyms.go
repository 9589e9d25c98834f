package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

func registerGymRoutes(authed *gin.RouterGroup, deps Deps) error {
	gymHandler, err := handlers.NewGymHandler(deps.Gyms, deps.Users)
	if err != nil {
		return err
	}
	staffHandler, err := handlers.NewStaffHandler(deps.Users, deps.Audit)
	if err != nil {
		return err
	}

	authed.POST("/gyms", gymHandler.Create)
	authed.GET("/gyms", gymHandler.List)

	gym := gymScoped(authed)
	{
		gym.GET("", middleware.RequireGymPermission(deps.Checker, "gym.view"), gymHandler.Get)
		gym.PATCH("", middleware.RequireGymPermission(deps.Checker, "gym.manage"), gymHandler.Update)
		gym.DELETE("", middleware.RequireGymPermission(deps.Checker, "gym.manage"), gymHandler.Delete)

		gym.GET("/staff", middleware.RequireGymPermission(deps.Checker, "staff.view"), staffHandler.List)
		gym.PATCH("/staff/:userID", middleware.RequireGymPermission(deps.Checker, "staff.update"), staffHandler.UpdateRole)
		gym.DELETE("/staff/:userID", middleware.RequireGymPermission(deps.Checker, "staff.delete"), staffHandler.Remove)
	}

	return nil
}
