package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/internal/middleware"
	"github.com/repfit/repfit/internal/realtime"
	appErrors "github.com/repfit/repfit/pkg/errors"
	"github.com/repfit/repfit/pkg/response"
)

// RealtimeHandler upgrades authorised dashboard clients onto the attendance
// event feed.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler wires the websocket endpoint.
func NewRealtimeHandler(hub *realtime.Hub) (*RealtimeHandler, error) {
	if hub == nil {
		return nil, errors.New("realtime handler: hub is required")
	}
	return &RealtimeHandler{hub: hub}, nil
}

// Stream upgrades the connection and subscribes it to the gym's attendance
// events. Permission is enforced by the route guard before the upgrade.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	h.hub.Serve(c.Param(middleware.GymParam), userID, c.Writer, c.Request)
}
