package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/services"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// AuditHandler exposes the gym's audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler wires the audit endpoints.
func NewAuditHandler(audit *services.AuditService) (*AuditHandler, error) {
	if audit == nil {
		return nil, errors.New("audit handler: audit service is required")
	}
	return &AuditHandler{audit: audit}, nil
}

// List returns the gym's audit entries, newest first.
func (h *AuditHandler) List(c *gin.Context) {
	input := services.ListAuditInput{
		Action:     c.Query("action"),
		UserID:     c.Query("user_id"),
		Pagination: pageFromQuery(c).Normalise(),
	}

	entries, total, err := h.audit.List(requestContext(c), c.Param(middleware.GymParam), input)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, response.PageMeta(input.Pagination.Page, input.Pagination.PageSize, int(total)))
}
