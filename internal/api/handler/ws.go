package handler

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request and hands the connection
// to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	viewerID, role := auth.Viewer(c)
	lang := h.Localizer.Lang(c.GetHeader("Accept-Language"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", viewerID).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, viewerID, role, lang)
	h.Hub.RegisterCh <- client
	client.Run()
}
