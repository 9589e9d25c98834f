package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/permissions"
	"github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/metrics"
	"github.com/repfit/repfit/pkg/response"
)

// GymParam is the route parameter carrying the tenant gym ID.
const GymParam = "gymID"

// RequireGymPermission checks that the authenticated user holds the permission
// within the gym named by the route's gym ID parameter.
func RequireGymPermission(checker *permissions.Checker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		gymID := c.Param(GymParam)
		if gymID == "" {
			response.Error(c, errors.ErrBadRequest)
			c.Abort()
			return
		}

		allowed, err := checker.Check(c.Request.Context(), userID, gymID, permissionID)
		if err != nil {
			metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": errors.ErrInternalServer.Code, "message": "permission check failed"},
			})
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, "allowed").Inc()
		c.Next()
	}
}

// RequireRoot restricts the route to platform root accounts.
func RequireRoot(isRoot func(c *gin.Context) (bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		root, err := isRoot(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !root {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
