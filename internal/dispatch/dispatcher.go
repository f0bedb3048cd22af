// Package dispatch turns domain events into system messages in the user's room.
package dispatch

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Handoff receives every appended system message for notification routing.
type Handoff interface {
	Deliver(ctx context.Context, msg *models.Message, room *models.ChatRoom)
}

// Dispatcher appends one system message per event.
type Dispatcher struct {
	Rooms       *connection.Orchestrator
	Storage     storage.Storage
	Broadcaster storage.Broadcaster
	Notifier    Handoff
}

func NewDispatcher(rooms *connection.Orchestrator, s storage.Storage, b storage.Broadcaster, n Handoff) *Dispatcher {
	return &Dispatcher{Rooms: rooms, Storage: s, Broadcaster: b, Notifier: n}
}

// Send resolves the room, appends the message and runs the secondary effects.
//
// The returned error covers only the primary path (validation, room
// resolution, append). The append is attempted once. Once it succeeds, the
// unread bump, the live fan-out and the notification are best effort: they are
// logged on failure and never undo the message.
func (d *Dispatcher) Send(ctx context.Context, ev models.Event) (*models.Message, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	text, err := Render(ev)
	if err != nil {
		return nil, err
	}
	actor := ev.Actor()

	roomID, err := d.Rooms.ResolveOrCreateRoom(ctx, connection.Request{
		UserID:     actor.UserID,
		StaffID:    actor.StaffID,
		Connection: ev.Connection(),
		Summary:    text.User,
		CreatedBy:  models.SystemSenderID,
		Auto:       true,
	})
	if err != nil {
		return nil, err
	}

	relatedID, relatedType := ev.Related()
	msg := &models.Message{
		RoomID:            roomID,
		SenderID:          models.SystemSenderID,
		ReceiverID:        actor.UserID,
		SenderName:        config.SystemSenderName,
		Body:              text.User,
		StaffBody:         text.Staff,
		IsSystemMessage:   true,
		MessageType:       models.MessageType(ev.Type()),
		RelatedEntityID:   relatedID,
		RelatedEntityType: relatedType,
		Priority:          text.Priority,
	}
	if err := d.Storage.AppendMessage(ctx, msg); err != nil {
		metrics.DispatchFailures.WithLabelValues("append").Inc()
		return nil, fmt.Errorf("append system message to %s: %w", roomID, err)
	}
	metrics.MessagesTotal.WithLabelValues("system").Inc()

	d.afterAppend(ctx, msg)
	return msg, nil
}

func (d *Dispatcher) afterAppend(ctx context.Context, msg *models.Message) {
	logger := log.With().Str("room_id", msg.RoomID).Str("message_id", msg.MessageID).Str("event", string(msg.MessageType)).Logger()

	if err := d.Storage.IncrementUnread(ctx, msg.RoomID); err != nil {
		metrics.DispatchFailures.WithLabelValues("unread").Inc()
		logger.Warn().Err(err).Msg("unread bump failed")
	}

	if d.Broadcaster != nil {
		if err := d.Broadcaster.PublishMessage(ctx, *msg); err != nil {
			metrics.DispatchFailures.WithLabelValues("publish").Inc()
			logger.Warn().Err(err).Msg("publish failed")
		}
	}

	if d.Notifier == nil {
		return
	}
	room, err := d.Storage.GetRoom(ctx, msg.RoomID)
	if err != nil {
		metrics.DispatchFailures.WithLabelValues("notify").Inc()
		logger.Warn().Err(err).Msg("room lookup for notification failed")
		return
	}
	d.Notifier.Deliver(ctx, msg, room)
}

// Dispatch is the fire-and-forget form of Send. Every failure is logged and
// dropped; a missing staff account abandons the event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) {
	msg, err := d.Send(ctx, ev)
	switch {
	case err == nil:
		log.Info().Str("room_id", msg.RoomID).Str("message_id", msg.MessageID).Str("event", string(ev.Type())).Msg("system message dispatched")
	case errors.Is(err, connection.ErrNoStaff):
		metrics.DispatchFailures.WithLabelValues("no_staff").Inc()
		log.Warn().Str("event", string(ev.Type())).Str("user_id", ev.Actor().UserID).Msg("no staff account, event abandoned")
	default:
		log.Error().Err(err).Str("event", string(ev.Type())).Str("user_id", ev.Actor().UserID).Msg("system message dispatch failed")
	}
}
