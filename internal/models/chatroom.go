package models

import "time"

// ConnectionType records why a room was opened. It is assigned once, when the
// room is first created, and never rewritten by later events.
type ConnectionType string

const (
	ConnectionGeneral     ConnectionType = "general"
	ConnectionManual      ConnectionType = "manual"
	ConnectionAdoption    ConnectionType = "adoption"
	ConnectionSupport     ConnectionType = "support"
	ConnectionAppointment ConnectionType = "appointment"
)

// DonationCategory is the kind of goods (or money) a donation carries.
type DonationCategory string

const (
	CategoryToys      DonationCategory = "toys"
	CategoryClothes   DonationCategory = "clothes"
	CategoryFood      DonationCategory = "food"
	CategoryEducation DonationCategory = "education"
	CategoryMoney     DonationCategory = "money"
	CategoryMedicine  DonationCategory = "medicine"
)

// DonationCategories lists every accepted category.
var DonationCategories = []DonationCategory{
	CategoryToys, CategoryClothes, CategoryFood, CategoryEducation, CategoryMoney, CategoryMedicine,
}

// Valid reports whether c is a known category.
func (c DonationCategory) Valid() bool {
	for _, known := range DonationCategories {
		if c == known {
			return true
		}
	}
	return false
}

// DonationConnection returns the "{category}_donation" connection type.
func DonationConnection(c DonationCategory) ConnectionType {
	return ConnectionType(string(c) + "_donation")
}

// Valid reports whether t belongs to the connection taxonomy.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionGeneral, ConnectionManual, ConnectionAdoption, ConnectionSupport, ConnectionAppointment:
		return true
	}
	for _, c := range DonationCategories {
		if t == DonationConnection(c) {
			return true
		}
	}
	return false
}

// ChatRoom is the one-on-one conversation between a user and a staff member.
// RoomID is derived from the two participant ids, so at most one row exists
// per unordered pair.
type ChatRoom struct {
	RoomID               string         `gorm:"primaryKey" json:"room_id"`
	ParticipantUser      string         `gorm:"index;not null" json:"participant_user"`
	ParticipantAdmin     string         `gorm:"index;not null" json:"participant_admin"`
	ConnectionType       ConnectionType `gorm:"type:text;not null" json:"connection_type"`
	LastMessage          string         `gorm:"type:text" json:"last_message"`
	LastMessageTimestamp time.Time      `json:"last_message_timestamp"`
	CreatedBy            string         `json:"created_by"`
	CreatedAt            time.Time      `json:"created_at"`
	LastActivity         time.Time      `gorm:"index" json:"last_activity"`
	// UnreadCount is an advisory cache. The message log is the source of truth.
	UnreadCount int  `gorm:"not null;default:0" json:"unread_count"`
	AutoCreated bool `json:"auto_created"`
}

// HasParticipant reports whether userID is one of the two room members.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return r.ParticipantUser == userID || r.ParticipantAdmin == userID
}

// Counterpart returns the other participant, or "" if userID is not a member.
func (r *ChatRoom) Counterpart(userID string) string {
	switch userID {
	case r.ParticipantUser:
		return r.ParticipantAdmin
	case r.ParticipantAdmin:
		return r.ParticipantUser
	}
	return ""
}
