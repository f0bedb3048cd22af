// Package handler exposes the chat, inbox, event and process operations over
// HTTP and upgrades authenticated clients to the WebSocket hub.
package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/chathub"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/dispatch"
	"adoptchat/backend/internal/localization"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/notify"
	"adoptchat/backend/internal/process"
	"adoptchat/backend/internal/storage"
	"adoptchat/backend/internal/unread"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Handler holds the services behind the API.
type Handler struct {
	Hub        *chathub.ManagerService
	Chat       *chat.Service
	Dispatcher *dispatch.Dispatcher
	Unread     *unread.Service
	Process    *process.Service
	Registrar  *notify.Registrar
	Storage    storage.Storage
	Localizer  *localization.Localizer

	Secret         string
	TokenTTLMinute int
}

// Register mounts every route on r. limit, when set, runs after
// authentication so buckets are keyed by user.
func (h *Handler) Register(r *gin.Engine, limit gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/api/v1/auth/register", h.RegisterUser)

	authed := auth.Middleware(h.Secret, h.Storage)
	r.GET("/ws", authed, h.ServeWebSocket)

	api := r.Group("/api/v1", authed)
	if limit != nil {
		api.Use(limit)
	}

	api.POST("/auth/telegram-link", h.TelegramLink)
	api.POST("/devices", h.RegisterDevice)

	api.GET("/rooms", h.ListRooms)
	api.GET("/unread", h.TotalUnread)
	api.GET("/rooms/:id/messages", h.History)
	api.POST("/rooms/:id/read", h.MarkRead)
	api.DELETE("/rooms/:id", h.DeleteRoom)

	api.POST("/messages", h.SendMessage)
	api.PATCH("/messages/:id", h.EditMessage)
	api.DELETE("/messages/:id", h.DeleteMessage)

	api.POST("/events", h.PostEvent)

	api.GET("/process", h.ActiveProcess)
	api.POST("/process/start", h.StartProcess)
	api.POST("/process/:user_id/steps/:step/complete", auth.RequireStaff(), h.CompleteStep)
}

// fail writes a localized error body.
func (h *Handler) fail(c *gin.Context, status int, key string) {
	lang := h.Localizer.Lang(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, gin.H{"error": key, "message": h.Localizer.GetString(lang, key)})
}

// failErr maps a service error to a status and localization key.
func (h *Handler) failErr(c *gin.Context, err error) {
	status, key := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	h.fail(c, status, key)
}

var chatStatus = map[string]int{
	chat.KeyEmptyMessage:   http.StatusBadRequest,
	chat.KeyMessageTooLong: http.StatusBadRequest,
	chat.KeyInvalidPair:    http.StatusBadRequest,
	chat.KeyUnknownUser:    http.StatusNotFound,
	chat.KeyRoomCreate:     http.StatusBadGateway,
	chat.KeyForbidden:      http.StatusForbidden,
	chat.KeyNotFound:       http.StatusNotFound,
	chat.KeyNotAuthor:      http.StatusForbidden,
	chat.KeyMessageGone:    http.StatusGone,
	chat.KeySystemMessage:  http.StatusForbidden,
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidEvent):
		return http.StatusBadRequest, "event.invalid"
	case errors.Is(err, connection.ErrInvalidPair):
		return http.StatusBadRequest, chat.KeyInvalidPair
	case errors.Is(err, connection.ErrNoStaff):
		return http.StatusServiceUnavailable, chat.KeyInternal
	case errors.Is(err, process.ErrAlreadyStarted):
		return http.StatusConflict, "process.already_started"
	case errors.Is(err, process.ErrNoActiveCycle):
		return http.StatusNotFound, "process.no_active_cycle"
	case errors.Is(err, process.ErrStepOutOfOrder):
		return http.StatusConflict, "process.out_of_order"
	case errors.Is(err, process.ErrInvalidStep):
		return http.StatusBadRequest, "process.invalid_step"
	}
	key := chat.Key(err)
	if status, ok := chatStatus[key]; ok {
		return status, key
	}
	return http.StatusInternalServerError, chat.KeyInternal
}
