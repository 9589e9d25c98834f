package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/repfit/repfit/pkg/response"
)

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler wires the health endpoint.
func NewHealthHandler(db *gorm.DB) (*HealthHandler, error) {
	if db == nil {
		return nil, errors.New("health handler: db is required")
	}
	return &HealthHandler{db: db}, nil
}

// Check reports service health. A failing database ping degrades the status
// and the HTTP code so load balancers can react.
func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(requestContext(c))
	}
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.Success(c, code, gin.H{"status": status})
}
