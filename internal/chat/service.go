// Package chat implements user-authored messaging between a user and staff.
package chat

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Notifier routes a stored message to its recipients.
type Notifier interface {
	Deliver(ctx context.Context, msg *models.Message, room *models.ChatRoom)
}

type Service struct {
	Rooms       *connection.Orchestrator
	Storage     storage.Storage
	Broadcaster storage.Broadcaster
	Notifier    Notifier
	now         func() time.Time
}

func NewService(rooms *connection.Orchestrator, s storage.Storage, b storage.Broadcaster, n Notifier) *Service {
	return &Service{
		Rooms:       rooms,
		Storage:     s,
		Broadcaster: b,
		Notifier:    n,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Send appends a message from senderID to receiverID.
// The first message of a pair creates the room; if that fails the sender gets
// a UserError. Every effect after the append is best effort.
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string, clientTs time.Time) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, userError(KeyEmptyMessage, nil)
	}
	if utf8.RuneCountInString(body) > config.MaxMessageLength {
		return nil, userError(KeyMessageTooLong, nil)
	}

	sender, err := s.Storage.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, s.lookupError(err)
	}
	receiver, err := s.Storage.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if sender.Role.IsStaff() == receiver.Role.IsStaff() {
		return nil, userError(KeyInvalidPair, connection.ErrInvalidPair)
	}

	roomID := connection.RoomID(senderID, receiverID)
	_, err = s.Storage.GetRoom(ctx, roomID)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}

	if _, err := s.Rooms.EnsurePair(ctx, *sender, *receiver, body); err != nil {
		if !exists {
			return nil, userError(KeyRoomCreate, err)
		}
		log.Warn().Err(err).Str("room_id", roomID).Msg("room summary update failed")
	}

	msg := &models.Message{
		RoomID:      roomID,
		SenderID:    sender.ID,
		ReceiverID:  receiver.ID,
		SenderName:  sender.Username,
		Body:        body,
		Timestamp:   clientTs,
		MessageType: models.MessageText,
	}
	if err := s.Storage.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", roomID, err)
	}
	metrics.MessagesTotal.WithLabelValues("chat").Inc()

	if err := s.Storage.IncrementUnread(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("message_id", msg.MessageID).Msg("unread bump failed")
	}
	s.publish(ctx, msg)
	if s.Notifier != nil {
		if room, err := s.Storage.GetRoom(ctx, roomID); err == nil {
			s.Notifier.Deliver(ctx, msg, room)
		} else {
			log.Warn().Err(err).Str("room_id", roomID).Msg("room lookup for notification failed")
		}
	}
	return msg, nil
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return userError(KeyUnknownUser, err)
	}
	return fmt.Errorf("load user: %w", err)
}

func (s *Service) publish(ctx context.Context, msg *models.Message) {
	if s.Broadcaster == nil {
		return
	}
	if err := s.Broadcaster.PublishMessage(ctx, *msg); err != nil {
		log.Warn().Err(err).Str("room_id", msg.RoomID).Str("message_id", msg.MessageID).Msg("publish failed")
	}
}

// ownMessage loads messageID and checks that viewerID wrote it.
func (s *Service) ownMessage(ctx context.Context, viewerID, messageID string) (*models.Message, error) {
	msg, err := s.Storage.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsSystemMessage {
		return nil, ErrSystemMessage
	}
	if msg.SenderID != viewerID {
		return nil, ErrNotAuthor
	}
	if msg.DeletedForEveryone {
		return nil, ErrMessageGone
	}
	return msg, nil
}

// Edit replaces the body of the viewer's own message.
func (s *Service) Edit(ctx context.Context, viewerID, messageID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, userError(KeyEmptyMessage, nil)
	}
	if utf8.RuneCountInString(body) > config.MaxMessageLength {
		return nil, userError(KeyMessageTooLong, nil)
	}
	msg, err := s.ownMessage(ctx, viewerID, messageID)
	if err != nil {
		return nil, err
	}

	at := s.now()
	patch := storage.MessagePatch{Body: &body, EditedTimestamp: &at}
	if err := s.Storage.UpdateMessage(ctx, messageID, patch); err != nil {
		return nil, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	patch.Apply(msg)
	s.publish(ctx, msg)
	return msg, nil
}

// DeleteForMe hides the message from the viewer only.
func (s *Service) DeleteForMe(ctx context.Context, viewerID, messageID string) error {
	msg, err := s.Storage.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	yes := true
	var patch storage.MessagePatch
	switch viewerID {
	case msg.SenderID:
		patch.DeletedBySender = &yes
	case msg.ReceiverID:
		patch.DeletedByReceiver = &yes
	default:
		return ErrForbidden
	}
	return s.Storage.UpdateMessage(ctx, messageID, patch)
}

// DeleteForEveryone tombstones the viewer's own message. The body is kept in
// storage and replaced by a notice when rendered.
func (s *Service) DeleteForEveryone(ctx context.Context, viewerID, messageID string) error {
	msg, err := s.ownMessage(ctx, viewerID, messageID)
	if err != nil {
		return err
	}
	yes := true
	patch := storage.MessagePatch{DeletedForEveryone: &yes}
	if err := s.Storage.UpdateMessage(ctx, messageID, patch); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	patch.Apply(msg)
	s.publish(ctx, Render(*msg, models.RoleUser))
	return nil
}

// authorize loads the room and checks that the viewer may see it.
// Staff may open any room.
func (s *Service) authorize(ctx context.Context, roomID, viewerID string, role models.Role) (*models.ChatRoom, error) {
	room, err := s.Storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() && !room.HasParticipant(viewerID) {
		return nil, ErrForbidden
	}
	return room, nil
}

// MarkRoomRead acknowledges everything unread for the viewer and resets the
// advisory counter. Staff also acknowledge system messages.
func (s *Service) MarkRoomRead(ctx context.Context, roomID, viewerID string, role models.Role) (int64, error) {
	if _, err := s.authorize(ctx, roomID, viewerID, role); err != nil {
		return 0, err
	}
	n, err := s.Storage.MarkRead(ctx, roomID, viewerID, role.IsStaff())
	if err != nil {
		return 0, fmt.Errorf("mark read %s: %w", roomID, err)
	}
	if err := s.Storage.SetUnread(ctx, roomID, 0); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("unread reset failed")
	}
	return n, nil
}

// History returns the room log as the viewer sees it: server-timestamp order,
// hidden messages dropped, tombstones rendered as a notice and system
// messages in the viewer's wording.
func (s *Service) History(ctx context.Context, roomID, viewerID string, role models.Role) ([]models.Message, error) {
	if _, err := s.authorize(ctx, roomID, viewerID, role); err != nil {
		return nil, err
	}
	entries, err := s.Storage.ListMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", roomID, err)
	}
	out := make([]models.Message, 0, len(entries))
	for i := range entries {
		if !entries[i].VisibleTo(viewerID) {
			continue
		}
		out = append(out, *Render(entries[i], role))
	}
	return out, nil
}

// Render prepares a message for a viewer of the given role.
func Render(m models.Message, role models.Role) *models.Message {
	if m.DeletedForEveryone {
		m.Body = config.DeletedMessageNotice
	} else {
		m.Body = m.BodyFor(role)
	}
	m.StaffBody = ""
	return &m
}

// DeleteRoom removes the room and its whole log.
func (s *Service) DeleteRoom(ctx context.Context, roomID, viewerID string, role models.Role) error {
	if _, err := s.authorize(ctx, roomID, viewerID, role); err != nil {
		return err
	}
	if err := s.Storage.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	log.Info().Str("room_id", roomID).Str("by", viewerID).Msg("room deleted")
	return nil
}
