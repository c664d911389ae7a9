package studio

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/livestudio/studio/pkg/response"
)

// MessageRequest is the body for POST /api/messages.
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Handler exposes the studio over HTTP.
type Handler struct {
	studio *Studio
	log    *zap.Logger
}

// NewHandler creates a studio handler.
func NewHandler(s *Studio, log *zap.Logger) *Handler {
	return &Handler{studio: s, log: log}
}

// Register mounts the studio routes on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/state", h.State)
	api.POST("/actions/:action", h.Action)
	api.POST("/messages", h.SendMessage)
	api.GET("/recording", h.Download)
}

// State handles GET /api/state.
func (h *Handler) State(c *gin.Context) {
	response.OK(c, h.studio.Snapshot())
}

// Action handles POST /api/actions/:action.
func (h *Handler) Action(c *gin.Context) {
	action := c.Param("action")
	err := h.studio.Do(c.Request.Context(), action)
	switch {
	case err == nil:
		response.OK(c, h.studio.State())
	case errors.Is(err, ErrUnknownAction):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrClosed):
		response.ServiceUnavailable(c, err.Error())
	default:
		h.log.Info("action failed", zap.String("action", action), zap.Error(err))
		response.Conflict(c, err.Error())
	}
}

// SendMessage handles POST /api/messages (presenter chat line).
func (h *Handler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.studio.SendHostMessage(req.Text); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, gin.H{"text": req.Text})
}

// Download handles GET /api/recording (the last finalized recording).
func (h *Handler) Download(c *gin.Context) {
	a := h.studio.Recording().Artifact()
	if a == nil {
		response.NotFound(c, "no recording available")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	c.DataFromReader(http.StatusOK, int64(a.Size), a.MimeType, a.Reader(), nil)
}
