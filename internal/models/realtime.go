package models

// FrameType is the discriminator of a WebSocket frame.
type FrameType string

const (
	// server -> client
	FrameMessage      FrameType = "message"
	FrameNotification FrameType = "notification"
	FrameError        FrameType = "error"

	// client -> server
	FrameEnterRoom  FrameType = "enter_room"
	FrameLeaveRoom  FrameType = "leave_room"
	FrameForeground FrameType = "foreground"
	FrameSend       FrameType = "send"
	FrameRead       FrameType = "read"
)

// Frame is the single envelope exchanged over the WebSocket connection.
type Frame struct {
	Type         FrameType     `json:"type"`
	RoomID       string        `json:"room_id,omitempty"`
	ReceiverID   string        `json:"receiver_id,omitempty"`
	Body         string        `json:"body,omitempty"`
	Timestamp    int64         `json:"timestamp,omitempty"` // client clock, unix millis
	Foreground   *bool         `json:"foreground,omitempty"`
	Message      *Message      `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Error        string        `json:"error,omitempty"`

	// SenderID is filled by the server from the authenticated connection.
	SenderID string `json:"-"`
}

// Notification is what a transport shows to a recipient.
type Notification struct {
	MessageID string   `json:"message_id"`
	RoomID    string   `json:"room_id"`
	Channel   string   `json:"channel"`
	Tag       string   `json:"tag"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Priority  Priority `json:"priority"`
}
