// Package connection resolves the single chat room shared by a user and a
// staff member.
package connection

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// RoomID joins the two identifiers in ordinal order, so RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + config.RoomIDSeparator + b
}

// Orchestrator owns room identity, staff selection and continuity.
type Orchestrator struct {
	Storage storage.Storage
	now     func() time.Time
}

// NewOrchestrator builds an orchestrator over s.
func NewOrchestrator(s storage.Storage) *Orchestrator {
	return &Orchestrator{Storage: s, now: func() time.Time { return time.Now().UTC() }}
}

// Request describes one resolve-or-create call.
type Request struct {
	UserID     string
	StaffID    string // optional
	Connection models.ConnectionType
	// Summary becomes the room's last_message.
	Summary   string
	CreatedBy string
	Auto      bool
}

// ResolveOrCreateRoom returns the id of the room between req.UserID and a staff
// member, creating it if absent.
//
// When StaffID is empty the staff member of the user's existing room is reused;
// failing that, the staff account whose id sorts first is chosen. The create is
// an upsert that merges only the summary fields, so concurrent first events for
// the same pair collapse into one row and never reclassify it.
func (o *Orchestrator) ResolveOrCreateRoom(ctx context.Context, req Request) (string, error) {
	if req.UserID == "" {
		return "", fmt.Errorf("resolve room: empty user id")
	}
	if !req.Connection.Valid() {
		return "", fmt.Errorf("resolve room: unknown connection type %q", req.Connection)
	}

	staffID, err := o.pickStaff(ctx, req.UserID, req.StaffID)
	if err != nil {
		return "", err
	}

	now := o.now()
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = req.UserID
	}
	room := &models.ChatRoom{
		RoomID:               RoomID(req.UserID, staffID),
		ParticipantUser:      req.UserID,
		ParticipantAdmin:     staffID,
		ConnectionType:       req.Connection,
		LastMessage:          Summarize(req.Summary),
		LastMessageTimestamp: now,
		CreatedBy:            createdBy,
		CreatedAt:            now,
		LastActivity:         now,
		AutoCreated:          req.Auto,
	}
	if err := o.Storage.UpsertRoom(ctx, room); err != nil {
		return "", fmt.Errorf("upsert room %s: %w", room.RoomID, err)
	}

	log.Debug().
		Str("room_id", room.RoomID).
		Str("user_id", req.UserID).
		Str("staff_id", staffID).
		Str("connection_type", string(req.Connection)).
		Msg("room resolved")
	return room.RoomID, nil
}

func (o *Orchestrator) pickStaff(ctx context.Context, userID, staffID string) (string, error) {
	if staffID != "" {
		return staffID, o.checkStaff(ctx, userID, staffID)
	}

	existing, err := o.Storage.FindRoomForUser(ctx, userID)
	switch {
	case err == nil:
		return existing.ParticipantAdmin, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("find room for %s: %w", userID, err)
	}

	first, err := o.Storage.FirstStaffID(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoStaff
	}
	if err != nil {
		return "", fmt.Errorf("select staff: %w", err)
	}
	return first, nil
}

// checkStaff verifies that an explicitly named staff id belongs to a staff
// account other than the user.
func (o *Orchestrator) checkStaff(ctx context.Context, userID, staffID string) error {
	if staffID == userID {
		return ErrInvalidPair
	}
	staff, err := o.Storage.GetUserByID(ctx, staffID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: unknown staff %s", ErrInvalidPair, staffID)
	case err != nil:
		return fmt.Errorf("load staff %s: %w", staffID, err)
	case !staff.Role.IsStaff():
		return fmt.Errorf("%w: %s is not staff", ErrInvalidPair, staffID)
	}
	return nil
}

// EnsurePair resolves the room for a user-authored chat between a and b.
// Exactly one side must be staff; the room keeps its original classification.
func (o *Orchestrator) EnsurePair(ctx context.Context, a, b models.User, summary string) (string, error) {
	if a.Role.IsStaff() == b.Role.IsStaff() {
		return "", ErrInvalidPair
	}
	user, staff := a, b
	if a.Role.IsStaff() {
		user, staff = b, a
	}
	return o.ResolveOrCreateRoom(ctx, Request{
		UserID:     user.ID,
		StaffID:    staff.ID,
		Connection: models.ConnectionGeneral,
		Summary:    summary,
		CreatedBy:  a.ID,
	})
}

// Summarize trims text to the room summary length on a rune boundary.
func Summarize(text string) string {
	if utf8.RuneCountInString(text) <= config.RoomSummaryMaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:config.RoomSummaryMaxLength-1]) + "…"
}
