package notify

import (
	"adoptchat/backend/internal/models"
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PresenceSource answers whether a viewer currently has a room open in front.
type PresenceSource interface {
	Foregrounded(viewerID, roomID string) bool
}

// Reasons a delivery is suppressed.
const (
	ReasonDuplicate  = "duplicate"
	ReasonForeground = "foreground"
	ReasonSelf       = "self"
)

// Decision is the routing result for one recipient.
type Decision struct {
	Suppress bool
	Reason   string
	Channel  Channel
	Tag      string
}

// Router applies channel mapping, foreground suppression and de-duplication.
type Router struct {
	presence PresenceSource
	seen     SeenStore
	ttl      time.Duration
}

func NewRouter(p PresenceSource, seen SeenStore, ttl time.Duration) *Router {
	return &Router{presence: p, seen: seen, ttl: ttl}
}

// Route decides for the message's receiver.
func (r *Router) Route(ctx context.Context, msg *models.Message) Decision {
	return r.RouteFor(ctx, msg.ReceiverID, msg)
}

// RouteFor decides for an arbitrary recipient of msg.
//
// A message id already seen for viewerID is a no-op, whatever transport
// delivered it first. A recipient looking at the room in the foreground gets
// nothing; the id is still recorded so a later background delivery stays quiet.
func (r *Router) RouteFor(ctx context.Context, viewerID string, msg *models.Message) Decision {
	d := Decision{Channel: ChannelFor(msg), Tag: Tag(msg.RoomID)}

	if viewerID == msg.SenderID {
		d.Suppress, d.Reason = true, ReasonSelf
		return d
	}

	first, err := r.seen.MarkSeen(ctx, viewerID+":"+msg.MessageID, r.ttl)
	if err != nil {
		// fail open
		log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("notify: seen store unavailable")
		first = true
	}
	if !first {
		d.Suppress, d.Reason = true, ReasonDuplicate
		return d
	}

	if r.presence != nil && r.presence.Foregrounded(viewerID, msg.RoomID) {
		d.Suppress, d.Reason = true, ReasonForeground
	}
	return d
}
