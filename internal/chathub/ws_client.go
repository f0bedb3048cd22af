package chathub

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/presence"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
	sendBuffer     = 256
)

// WebSocketClient implements Client over gorilla/websocket.
type WebSocketClient struct {
	UserID string
	Role   models.Role
	Lang   string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Frame
	State  *presence.State

	closeOnce sync.Once
}

// NewWebSocketClient wires a connection to the hub and its presence registry.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string, role models.Role, lang string) *WebSocketClient {
	st := &presence.State{}
	if hub.Presence != nil {
		st = hub.Presence.Add(userID)
	}
	return &WebSocketClient{
		UserID: userID,
		Role:   role,
		Lang:   lang,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Frame, sendBuffer),
		State:  st,
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetRole() models.Role                { return c.Role }
func (c *WebSocketClient) GetLang() string                     { return c.Lang }
func (c *WebSocketClient) Presence() *presence.State           { return c.State }
func (c *WebSocketClient) GetSendChannel() chan<- models.Frame { return c.Send }

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// applyPresence updates the device state for presence frames, shares it with
// other instances and reports whether the frame should also go to the hub.
func (c *WebSocketClient) applyPresence(f models.Frame) bool {
	switch f.Type {
	case models.FrameEnterRoom:
		c.State.Enter(f.RoomID)
		c.publishPresence()
		return true
	case models.FrameLeaveRoom:
		c.State.Leave()
		c.publishPresence()
		return false
	case models.FrameForeground:
		if f.Foreground != nil {
			c.State.SetForeground(*f.Foreground)
			c.publishPresence()
		}
		return false
	}
	return true
}

func (c *WebSocketClient) publishPresence() {
	if c.Hub != nil && c.Hub.Presence != nil {
		c.Hub.Presence.Publish(c.UserID, c.State)
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.UserID).Msg("ws read failed")
			}
			break
		}

		var f models.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Debug().Err(err).Str("user_id", c.UserID).Msg("ws: undecodable frame")
			continue
		}
		f.SenderID = c.UserID

		if c.applyPresence(f) {
			c.Hub.Submit(c, f)
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(f); err != nil {
				log.Debug().Err(err).Str("user_id", c.UserID).Msg("ws write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.publishPresence()
		}
	}
}
