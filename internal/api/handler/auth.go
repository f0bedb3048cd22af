package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/models"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,max=64"`
}

// RegisterUser creates a regular user and returns its access token.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}

	user := &models.User{Username: strings.TrimSpace(req.Username), Role: models.RoleUser}
	if err := h.Storage.SaveUser(c.Request.Context(), user); err != nil {
		h.failErr(c, err)
		return
	}

	token, err := auth.GenerateAccessToken(user.ID, user.Role, h.Secret, h.TokenTTLMinute)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// TelegramLink returns the payload for the bot's /start command.
func (h *Handler) TelegramLink(c *gin.Context) {
	viewerID, _ := auth.Viewer(c)
	token, err := auth.GenerateLinkToken(viewerID, h.Secret)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link_token": token, "expires_in": int(auth.LinkTokenTTL.Seconds())})
}

type deviceRequest struct {
	Platform models.Platform `json:"platform" binding:"required"`
	Token    string          `json:"token" binding:"required"`
}

// RegisterDevice stores a background delivery token for the viewer.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Platform != models.PlatformTelegram {
		h.fail(c, http.StatusBadRequest, "error.bad_request")
		return
	}
	viewerID, _ := auth.Viewer(c)
	if err := h.Registrar.Register(c.Request.Context(), viewerID, req.Platform, req.Token); err != nil {
		h.failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
