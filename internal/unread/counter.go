// Package unread derives role-aware unread counts from the message log.
package unread

import (
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"context"
	"fmt"
	"time"
)

// Counts reports whether msg is unread for viewerID.
//
// A regular user counts only what is addressed to them. Staff work as one
// triage pool, so any unread message authored by the platform counts for every
// staff viewer regardless of which staff id it targeted.
func Counts(msg *models.Message, viewerID string, role models.Role) bool {
	if msg.ReadByReceiver || msg.DeletedForEveryone || !msg.VisibleTo(viewerID) {
		return false
	}
	if msg.ReceiverID == viewerID {
		return true
	}
	return role.IsStaff() && msg.IsFromSystem()
}

// Count returns how many messages of log are unread for the viewer.
func Count(log []models.Message, viewerID string, role models.Role) int {
	n := 0
	for i := range log {
		if Counts(&log[i], viewerID, role) {
			n++
		}
	}
	return n
}

// Service recomputes counts from storage.
type Service struct {
	Storage storage.Storage
}

func NewService(s storage.Storage) *Service {
	return &Service{Storage: s}
}

// RoomUnread recomputes the viewer's unread count for one room.
func (s *Service) RoomUnread(ctx context.Context, roomID, viewerID string, role models.Role) (int, error) {
	start := time.Now()
	defer func() { metrics.UnreadRecomputeDuration.Observe(time.Since(start).Seconds()) }()

	log, err := s.Storage.ListMessages(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("list messages of %s: %w", roomID, err)
	}
	return Count(log, viewerID, role), nil
}

// InboxEntry is a room as it appears in a viewer's inbox.
type InboxEntry struct {
	models.ChatRoom
	Unread int `json:"unread"`
}

// Inbox lists the rooms visible to the viewer with recomputed unread counts,
// most recently active first. The advisory UnreadCount column is overwritten
// with the recomputed value in the returned copies.
func (s *Service) Inbox(ctx context.Context, viewerID string, role models.Role) ([]InboxEntry, error) {
	rooms, err := s.Storage.ListRooms(ctx, viewerID, role)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]InboxEntry, 0, len(rooms))
	for _, r := range rooms {
		n, err := s.RoomUnread(ctx, r.RoomID, viewerID, role)
		if err != nil {
			return nil, err
		}
		r.UnreadCount = n
		out = append(out, InboxEntry{ChatRoom: r, Unread: n})
	}
	return out, nil
}

// Total sums the viewer's unread count over every visible room.
func (s *Service) Total(ctx context.Context, viewerID string, role models.Role) (int, error) {
	inbox, err := s.Inbox(ctx, viewerID, role)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range inbox {
		total += e.Unread
	}
	return total, nil
}
