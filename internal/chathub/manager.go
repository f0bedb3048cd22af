// Package chathub keeps the live WebSocket connections: it fans appended
// messages out to every connection that should see them, turns client frames
// into chat operations and delivers in-app notifications.
package chathub

import (
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/localization"
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/notify"
	"adoptchat/backend/internal/presence"
	"adoptchat/backend/internal/storage"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ChatService is the part of the chat service driven by client frames.
type ChatService interface {
	Send(ctx context.Context, senderID, receiverID, body string, clientTs time.Time) (*models.Message, error)
	MarkRoomRead(ctx context.Context, roomID, viewerID string, role models.Role) (int64, error)
}

// Incoming is a frame read from a client.
type Incoming struct {
	Client Client
	Frame  models.Frame
}

// laneBuffer bounds the frames a client may have waiting for handling.
const laneBuffer = 32

// ManagerService is the hub. Register, unregister and fan-out run on the Run
// goroutine; Push and Online may be called from anywhere. Frames of one client
// are handled in arrival order on that client's lane.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]map[Client]struct{}
	lanes   map[Client]chan models.Frame
	ctx     context.Context
	done    chan struct{}

	IncomingCh   chan Incoming
	RegisterCh   chan Client
	UnregisterCh chan Client

	Broadcaster storage.Broadcaster
	Presence    *presence.Registry
	Chat        ChatService
	Localizer   *localization.Localizer
}

func NewManagerService(b storage.Broadcaster, p *presence.Registry, c ChatService, l *localization.Localizer) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]map[Client]struct{}),
		lanes:        make(map[Client]chan models.Frame),
		ctx:          context.Background(),
		done:         make(chan struct{}),
		IncomingCh:   make(chan Incoming, 64),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Broadcaster:  b,
		Presence:     p,
		Chat:         c,
		Localizer:    l,
	}
}

// Run serves the hub until ctx is cancelled. It must be called once.
func (m *ManagerService) Run(ctx context.Context) {
	m.ctx = ctx
	messages, closeSub := m.Broadcaster.SubscribeMessages(ctx)
	defer func() {
		close(m.done)
		if err := closeSub(); err != nil {
			log.Warn().Err(err).Msg("hub: closing subscription")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-m.RegisterCh:
			m.register(c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case in := <-m.IncomingCh:
			m.enqueue(in)
		case msg, ok := <-messages:
			if !ok {
				log.Warn().Msg("hub: message subscription closed")
				messages = nil
				continue
			}
			m.fanOut(msg)
		}
	}
}

func (m *ManagerService) register(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.Clients[c.GetUserID()]
	if !ok {
		set = make(map[Client]struct{})
		m.Clients[c.GetUserID()] = set
	}
	set[c] = struct{}{}
	lane := make(chan models.Frame, laneBuffer)
	m.lanes[c] = lane
	go m.serve(m.ctx, c, lane)
	metrics.WsConnections.Inc()
	log.Debug().Str("user_id", c.GetUserID()).Msg("client registered")
}

func (m *ManagerService) unregister(c Client) {
	m.mu.Lock()
	set := m.Clients[c.GetUserID()]
	if _, ok := set[c]; !ok {
		m.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.Clients, c.GetUserID())
	}
	if lane, ok := m.lanes[c]; ok {
		close(lane)
		delete(m.lanes, c)
	}
	c.Close()
	m.mu.Unlock()

	if m.Presence != nil {
		m.Presence.Remove(c.GetUserID(), c.Presence())
	}
	metrics.WsConnections.Dec()
	log.Debug().Str("user_id", c.GetUserID()).Msg("client unregistered")
}

// deliver must be called with m.mu held for reading.
func (m *ManagerService) deliver(c Client, f models.Frame) {
	select {
	case c.GetSendChannel() <- f:
	default:
		log.Warn().Str("user_id", c.GetUserID()).Msg("client send buffer full, dropping connection")
		go m.Unregister(c)
	}
}

// Submit hands a frame read from c to the Run loop. It returns without effect
// once Run has stopped.
func (m *ManagerService) Submit(c Client, f models.Frame) {
	select {
	case m.IncomingCh <- Incoming{Client: c, Frame: f}:
	case <-m.done:
	}
}

// Unregister hands c to the Run loop for removal. It returns without effect
// once Run has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// enqueue runs on the Run goroutine.
func (m *ManagerService) enqueue(in Incoming) {
	lane, ok := m.lanes[in.Client]
	if !ok {
		log.Debug().Str("user_id", in.Client.GetUserID()).Msg("hub: frame from unregistered client")
		return
	}
	select {
	case lane <- in.Frame:
	default:
		log.Warn().Str("user_id", in.Client.GetUserID()).Msg("client frame backlog full, dropping connection")
		m.unregister(in.Client)
	}
}

func (m *ManagerService) serve(ctx context.Context, c Client, lane <-chan models.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-lane:
			if !ok {
				return
			}
			m.handleIncoming(ctx, Incoming{Client: c, Frame: f})
		}
	}
}

// Online reports whether viewerID has a live connection.
func (m *ManagerService) Online(viewerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients[viewerID]) > 0
}

// Push sends an in-app notification frame to every connection of viewerID.
func (m *ManagerService) Push(_ context.Context, viewerID string, n models.Notification) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.Clients[viewerID]
	if len(set) == 0 {
		return notify.ErrNoDeliveryTarget
	}
	for c := range set {
		n := n
		m.deliver(c, models.Frame{Type: models.FrameNotification, RoomID: n.RoomID, Notification: &n})
	}
	return nil
}

func (m *ManagerService) handleIncoming(ctx context.Context, in Incoming) {
	c, f := in.Client, in.Frame
	switch f.Type {
	case models.FrameSend:
		ts := time.Time{}
		if f.Timestamp > 0 {
			ts = time.UnixMilli(f.Timestamp).UTC()
		}
		if _, err := m.Chat.Send(ctx, c.GetUserID(), f.ReceiverID, f.Body, ts); err != nil {
			m.replyError(c, err)
		}
	case models.FrameRead, models.FrameEnterRoom:
		if _, err := m.Chat.MarkRoomRead(ctx, f.RoomID, c.GetUserID(), c.GetRole()); err != nil {
			m.replyError(c, err)
		}
	default:
		log.Debug().Str("type", string(f.Type)).Str("user_id", c.GetUserID()).Msg("hub: ignored frame")
	}
}

func (m *ManagerService) replyError(c Client, err error) {
	key := chat.Key(err)
	if key == chat.KeyInternal {
		log.Error().Err(err).Str("user_id", c.GetUserID()).Msg("hub: frame failed")
	}
	text := key
	if m.Localizer != nil {
		text = m.Localizer.GetString(c.GetLang(), key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.Clients[c.GetUserID()][c]; ok {
		m.deliver(c, models.Frame{Type: models.FrameError, Error: text})
	}
}
