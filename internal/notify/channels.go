// Package notify decides whether and how a stored message alerts its
// recipients, and hands the result to the delivery transports.
package notify

import (
	"adoptchat/backend/internal/models"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Channel is a notification category as registered on the client.
type Channel string

const (
	ChannelChat      Channel = "chat"
	ChannelSystem    Channel = "system"
	ChannelProcess   Channel = "process-updates"
	ChannelDonations Channel = "donation-updates"
	ChannelAlert     Channel = "alert"
)

// Importance mirrors the client-side channel importance levels.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
)

// ChannelSpec describes how a channel is presented.
type ChannelSpec struct {
	Name       Channel
	Importance Importance
	Vibration  []int64 // ms pattern, nil for the platform default
	BypassDND  bool
}

// Loud reports whether a notification on this channel should make a sound.
func (s ChannelSpec) Loud() bool { return s.Importance == ImportanceHigh }

// Channels is the fixed channel table.
var Channels = map[Channel]ChannelSpec{
	ChannelChat:      {Name: ChannelChat, Importance: ImportanceHigh, Vibration: []int64{0, 250, 250, 250}},
	ChannelSystem:    {Name: ChannelSystem, Importance: ImportanceDefault},
	ChannelProcess:   {Name: ChannelProcess, Importance: ImportanceHigh},
	ChannelDonations: {Name: ChannelDonations, Importance: ImportanceDefault},
	ChannelAlert:     {Name: ChannelAlert, Importance: ImportanceHigh, BypassDND: true},
}

// ChannelFor maps a message to its channel.
func ChannelFor(msg *models.Message) Channel {
	if !msg.IsSystemMessage {
		return ChannelChat
	}
	if msg.Priority == models.PriorityUrgent {
		return ChannelAlert
	}
	switch msg.MessageType {
	case models.MessageItemDonation, models.MessageFundDonation,
		models.MessageDonationApproved, models.MessageDonationRejected:
		return ChannelDonations
	case models.MessageProcessStarted, models.MessageStepCompleted,
		models.MessageCycleRestarted, models.MessageMatchCompleted:
		return ChannelProcess
	}
	return ChannelSystem
}

// Tag is the stable per-room slot key. Notifications with the same tag replace
// each other on the device instead of stacking.
func Tag(roomID string) string {
	return "room-" + strconv.FormatUint(xxhash.Sum64String(roomID), 16)
}
