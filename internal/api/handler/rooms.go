package handler

import (
	"adoptchat/backend/internal/auth"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListRooms returns the viewer's inbox with recomputed unread counts.
func (h *Handler) ListRooms(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	rooms, err := h.Unread.Inbox(c.Request.Context(), viewerID, role)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) TotalUnread(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	n, err := h.Unread.Total(c.Request.Context(), viewerID, role)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h *Handler) History(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	msgs, err := h.Chat.History(c.Request.Context(), c.Param("id"), viewerID, role)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) MarkRead(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	n, err := h.Chat.MarkRoomRead(c.Request.Context(), c.Param("id"), viewerID, role)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	if err := h.Chat.DeleteRoom(c.Request.Context(), c.Param("id"), viewerID, role); err != nil {
		h.failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
