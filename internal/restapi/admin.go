package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cherryvm/vmhub/internal/hub"
	"cherryvm/vmhub/internal/vmid"
)

// SessionDisconnector is the subset of hub.Server the admin surface needs.
type SessionDisconnector interface {
	DisconnectUser(userID vmid.UserID, code int, reason string) int
}

// AdminHandlers exposes the hub's administrative actions over HTTP, guarded
// by ServiceAuthMiddleware upstream.
type AdminHandlers struct {
	Hub SessionDisconnector
}

func NewAdminHandlers(h *hub.Server) *AdminHandlers {
	return &AdminHandlers{Hub: h}
}

type disconnectRequest struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type disconnectResponse struct {
	SessionsClosed int `json:"sessions_closed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// DisconnectUser handles POST /admin/sessions/:user_id/disconnect, closing
// every live session the named user holds across all three scopes.
func (a *AdminHandlers) DisconnectUser(c *gin.Context) {
	userID, err := vmid.NewUserID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid user_id"})
		return
	}

	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = disconnectRequest{}
	}
	if req.Code == 0 {
		req.Code = hub.CloseAdministrative
	}
	if req.Reason == "" {
		req.Reason = "administrative disconnect"
	}

	closed := a.Hub.DisconnectUser(userID, req.Code, req.Reason)
	c.JSON(http.StatusOK, disconnectResponse{SessionsClosed: closed})
}

// RegisterRoutes wires the admin surface onto an existing router group. The
// caller is responsible for mounting auth middleware on group.
func RegisterRoutes(group *gin.RouterGroup, handlers *AdminHandlers) {
	group.POST("/sessions/:user_id/disconnect", handlers.DisconnectUser)
}
