package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/models"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PostEvent turns a domain event into a system message. Users may only post
// events about themselves and cannot choose the staff member; staff may post
// for anyone.
func (h *Handler) PostEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	ev, err := models.DecodeEvent(raw)
	if err != nil {
		h.failErr(c, err)
		return
	}
	viewerID, role := auth.Viewer(c)
	if !role.IsStaff() && (ev.Actor().UserID != viewerID || ev.Actor().StaffID != "") {
		h.fail(c, http.StatusForbidden, "chat.forbidden")
		return
	}

	msg, err := h.Dispatcher.Send(c.Request.Context(), ev)
	if errors.Is(err, connection.ErrNoStaff) {
		log.Warn().Str("event", string(ev.Type())).Str("user_id", ev.Actor().UserID).Msg("no staff account, event abandoned")
		c.JSON(http.StatusAccepted, gin.H{"dispatched": false})
		return
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispatched": true, "message": chat.Render(*msg, role)})
}

func (h *Handler) ActiveProcess(c *gin.Context) {
	viewerID, _ := auth.Viewer(c)
	cycle, err := h.Process.Active(c.Request.Context(), viewerID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cycle)
}

func (h *Handler) StartProcess(c *gin.Context) {
	viewerID, _ := auth.Viewer(c)
	user, err := h.Storage.GetUserByID(c.Request.Context(), viewerID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	cycle, err := h.Process.Start(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, cycle)
}

// CompleteStep marks the active step of a user's cycle done. Staff only.
func (h *Handler) CompleteStep(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, "process.invalid_step")
		return
	}
	user, err := h.Storage.GetUserByID(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	cycle, err := h.Process.CompleteStep(c.Request.Context(), user.ID, user.Username, step)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cycle)
}
