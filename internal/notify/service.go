package notify

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/models"
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Pusher is one delivery transport.
type Pusher interface {
	Push(ctx context.Context, viewerID string, n models.Notification) error
}

// OnlineSource reports whether a viewer has a live in-app connection.
type OnlineSource interface {
	Online(viewerID string) bool
}

// Service routes stored messages to their recipients.
//
// A viewer with a live connection is alerted in-app only; otherwise the
// background transports are used. Either way the router sees each
// (viewer, message) pair once.
type Service struct {
	Router     *Router
	Online     OnlineSource
	InApp      Pusher
	Background []Pusher
}

func NewService(r *Router, online OnlineSource, inApp Pusher, background ...Pusher) *Service {
	return &Service{Router: r, Online: online, InApp: inApp, Background: background}
}

// Recipients lists who should hear about msg: its receiver and, for system
// messages, the room's staff participant. The sender is never included.
func Recipients(msg *models.Message, room *models.ChatRoom) []string {
	out := make([]string, 0, 2)
	add := func(id string) {
		if id == "" || id == msg.SenderID {
			return
		}
		for _, have := range out {
			if have == id {
				return
			}
		}
		out = append(out, id)
	}
	add(msg.ReceiverID)
	if msg.IsSystemMessage && room != nil {
		add(room.ParticipantAdmin)
	}
	return out
}

// Build renders the notification a recipient sees.
func Build(msg *models.Message, room *models.ChatRoom, viewerID string, d Decision) models.Notification {
	role := models.RoleUser
	if room != nil && room.ParticipantAdmin == viewerID {
		role = models.RoleStaff
	}
	title := msg.SenderName
	if msg.IsSystemMessage || title == "" {
		title = config.SystemSenderName
	}
	return models.Notification{
		MessageID: msg.MessageID,
		RoomID:    msg.RoomID,
		Channel:   string(d.Channel),
		Tag:       d.Tag,
		Title:     title,
		Body:      msg.BodyFor(role),
		Priority:  msg.Priority,
	}
}

// Deliver notifies every recipient of msg. Failures are logged and dropped.
func (s *Service) Deliver(ctx context.Context, msg *models.Message, room *models.ChatRoom) {
	for _, viewerID := range Recipients(msg, room) {
		d := s.Router.RouteFor(ctx, viewerID, msg)
		if d.Suppress {
			metrics.NotificationsTotal.WithLabelValues(string(d.Channel), "suppressed_"+d.Reason).Inc()
			log.Debug().
				Str("message_id", msg.MessageID).
				Str("room_id", msg.RoomID).
				Str("viewer_id", viewerID).
				Str("reason", d.Reason).
				Msg("notification suppressed")
			continue
		}
		s.push(ctx, viewerID, Build(msg, room, viewerID, d))
	}
}

func (s *Service) push(ctx context.Context, viewerID string, n models.Notification) {
	targets := s.Background
	if s.InApp != nil && s.Online != nil && s.Online.Online(viewerID) {
		targets = []Pusher{s.InApp}
	}

	for _, p := range targets {
		err := p.Push(ctx, viewerID, n)
		switch {
		case err == nil:
			metrics.NotificationsTotal.WithLabelValues(n.Channel, "delivered").Inc()
		case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNoDeliveryTarget):
			metrics.NotificationsTotal.WithLabelValues(n.Channel, "skipped").Inc()
			log.Debug().Err(err).Str("viewer_id", viewerID).Str("message_id", n.MessageID).Msg("notification skipped")
		default:
			metrics.NotificationsTotal.WithLabelValues(n.Channel, "failed").Inc()
			log.Warn().Err(err).Str("viewer_id", viewerID).Str("message_id", n.MessageID).Msg("notification send failed")
		}
	}
}
