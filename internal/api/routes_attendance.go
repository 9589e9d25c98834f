package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

func registerAttendanceRoutes(authed *gin.RouterGroup, deps Deps) error {
	attendanceHandler, err := handlers.NewAttendanceHandler(deps.Attendance, deps.Members, deps.Users, deps.Checker, deps.Audit)
	if err != nil {
		return err
	}
	realtimeHandler, err := handlers.NewRealtimeHandler(deps.Hub)
	if err != nil {
		return err
	}

	// Check-in/out resolve the subject from the authenticated identity, so
	// they sit outside the gym-scoped permission guard.
	attendance := authed.Group("/attendance")
	{
		attendance.POST("/checkin", attendanceHandler.CheckIn)
		attendance.POST("/checkout", attendanceHandler.CheckOut)
		attendance.GET("/status", attendanceHandler.Status)
	}

	gym := gymScoped(authed)
	{
		gym.GET("/attendance", middleware.RequireGymPermission(deps.Checker, "attendance.view"), attendanceHandler.List)
		gym.PATCH("/attendance/sessions/:sessionID", middleware.RequireGymPermission(deps.Checker, "attendance.edit"), attendanceHandler.Edit)
		gym.GET("/attendance/stream", middleware.RequireGymPermission(deps.Checker, "attendance.view"), realtimeHandler.Stream)
	}

	return nil
}
