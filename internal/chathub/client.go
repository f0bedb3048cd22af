package chathub

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/presence"
)

// Client is one live connection of a viewer. A viewer may hold several.
type Client interface {
	GetUserID() string
	GetRole() models.Role
	// GetLang is the language error frames are rendered in.
	GetLang() string
	// Presence is the device state consulted by notification routing.
	Presence() *presence.State

	// GetSendChannel returns the channel the hub writes outgoing frames to.
	GetSendChannel() chan<- models.Frame

	Run()
	Close()
}
