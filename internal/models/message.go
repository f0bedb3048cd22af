package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemSenderID is the sender id of every platform-authored message.
const SystemSenderID = "system"

// MessageType classifies a message. User-authored chat is MessageText; the
// rest are system messages, one per domain event type.
type MessageType string

const (
	MessageText                 MessageType = "text"
	MessageProcessStarted       MessageType = "process_started"
	MessageItemDonation         MessageType = "item_donation_submitted"
	MessageFundDonation         MessageType = "fund_donation_submitted"
	MessageDonationApproved     MessageType = "donation_approved"
	MessageDonationRejected     MessageType = "donation_rejected"
	MessageAppointmentScheduled MessageType = "appointment_scheduled"
	MessageAppointmentCancelled MessageType = "appointment_cancelled"
	MessageMatchCompleted       MessageType = "match_completed"
	MessageStepCompleted        MessageType = "step_completed"
	MessageCycleRestarted       MessageType = "cycle_restarted"
)

// Priority is a hint for notification routing.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is one entry of a room's append-only log. Apart from flag toggles
// and edits it is never mutated after it is stored.
type Message struct {
	MessageID  string `gorm:"primaryKey;type:text" json:"messageId"`
	RoomID     string `gorm:"not null;index:idx_room_server_ts,priority:1" json:"roomId"`
	SenderID   string `gorm:"not null;index" json:"senderId"`
	ReceiverID string `gorm:"not null;index" json:"receiverId"`
	SenderName string `json:"senderName"`
	Body       string `gorm:"column:message;type:text;not null" json:"message"`
	// StaffBody is the staff-facing wording of a system message.
	StaffBody string `gorm:"type:text" json:"staffMessage,omitempty"`

	// Timestamp is the client clock and only used for display until the
	// server timestamp is known. Ordering always uses ServerTimestamp.
	Timestamp       time.Time `json:"timestamp"`
	ServerTimestamp time.Time `gorm:"index:idx_room_server_ts,priority:2" json:"serverTimestamp"`

	ReadByReceiver     bool `gorm:"not null;default:false;index" json:"read_by_receiver"`
	DeletedBySender    bool `gorm:"not null;default:false" json:"deleted_by_sender"`
	DeletedByReceiver  bool `gorm:"not null;default:false" json:"deleted_by_receiver"`
	DeletedForEveryone bool `gorm:"not null;default:false" json:"deleted_for_everyone"`

	IsSystemMessage   bool        `gorm:"not null;default:false" json:"isSystemMessage"`
	MessageType       MessageType `gorm:"type:text;not null;default:text" json:"messageType"`
	RelatedEntityID   string      `gorm:"index" json:"relatedEntityId,omitempty"`
	RelatedEntityType string      `json:"donationType,omitempty"`

	Edited          bool       `gorm:"not null;default:false" json:"edited"`
	EditedTimestamp *time.Time `json:"editedTimestamp,omitempty"`
	Priority        Priority   `gorm:"type:text;not null;default:normal" json:"priority"`
}

// BeforeCreate assigns the server-side key and timestamp.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.MessageID == "" {
		m.MessageID = uuid.New().String()
	}
	m.ServerTimestamp = time.Now().UTC()
	if m.Timestamp.IsZero() {
		m.Timestamp = m.ServerTimestamp
	}
	if m.MessageType == "" {
		m.MessageType = MessageText
	}
	if m.Priority == "" {
		m.Priority = PriorityNormal
	}
	return
}

// DisplayTime is the server timestamp, falling back to the client one.
func (m *Message) DisplayTime() time.Time {
	if !m.ServerTimestamp.IsZero() {
		return m.ServerTimestamp
	}
	return m.Timestamp
}

// IsFromSystem reports whether the platform itself authored the message.
func (m *Message) IsFromSystem() bool {
	return m.IsSystemMessage && m.SenderID == SystemSenderID
}

// VisibleTo applies the per-viewer "delete for me" flags.
func (m *Message) VisibleTo(viewerID string) bool {
	if viewerID == m.SenderID && m.DeletedBySender {
		return false
	}
	if viewerID == m.ReceiverID && m.DeletedByReceiver {
		return false
	}
	return true
}

// BodyFor returns the wording meant for the given audience.
func (m *Message) BodyFor(role Role) string {
	if role.IsStaff() && m.StaffBody != "" {
		return m.StaffBody
	}
	return m.Body
}
