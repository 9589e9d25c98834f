package api

import (
	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/handlers"
	"github.com/repfit/repfit/internal/middleware"
)

func registerBillingRoutes(authed *gin.RouterGroup, deps Deps) error {
	billingHandler, err := handlers.NewBillingHandler(deps.Billing, deps.Audit)
	if err != nil {
		return err
	}

	authed.GET("/plans", billingHandler.ListPlans)

	billing := gymScoped(authed).Group("/billing")
	{
		billing.GET("", middleware.RequireGymPermission(deps.Checker, "billing.view"), billingHandler.GetSubscription)
		billing.POST("/subscribe", middleware.RequireGymPermission(deps.Checker, "billing.manage"), billingHandler.Subscribe)
		billing.POST("/cancel", middleware.RequireGymPermission(deps.Checker, "billing.manage"), billingHandler.Cancel)
	}

	return nil
}
