package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chat"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	ReceiverID string    `json:"receiver_id" binding:"required"`
	Body       string    `json:"body"`
	ClientTs   time.Time `json:"client_ts"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	viewerID, role := auth.Viewer(c)
	msg, err := h.Chat.Send(c.Request.Context(), viewerID, req.ReceiverID, req.Body, req.ClientTs)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat.Render(*msg, role))
}

type editRequest struct {
	Body string `json:"body"`
}

func (h *Handler) EditMessage(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	viewerID, role := auth.Viewer(c)
	msg, err := h.Chat.Edit(c.Request.Context(), viewerID, c.Param("id"), req.Body)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chat.Render(*msg, role))
}

// DeleteMessage hides a message for the viewer (?scope=me, the default) or
// tombstones it for both participants (?scope=everyone).
func (h *Handler) DeleteMessage(c *gin.Context) {
	viewerID, _ := auth.Viewer(c)
	ctx := c.Request.Context()

	var err error
	switch c.DefaultQuery("scope", "me") {
	case "me":
		err = h.Chat.DeleteForMe(ctx, viewerID, c.Param("id"))
	case "everyone":
		err = h.Chat.DeleteForEveryone(ctx, viewerID, c.Param("id"))
	default:
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
