package chathub_test

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/presence"
	"sync/atomic"
)

type MockClient struct {
	userID      string
	role        models.Role
	state       *presence.State
	RecvChannel chan models.Frame
	closed      atomic.Bool
}

func newMockClient(userID string, role models.Role) *MockClient {
	return &MockClient{
		userID:      userID,
		role:        role,
		state:       &presence.State{},
		RecvChannel: make(chan models.Frame, 10),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetRole() models.Role                { return c.role }
func (c *MockClient) GetLang() string                     { return "uk" }
func (c *MockClient) Presence() *presence.State           { return c.state }
func (c *MockClient) GetSendChannel() chan<- models.Frame { return c.RecvChannel }
func (c *MockClient) Run()                                {}
func (c *MockClient) Close()                              { c.closed.Store(true) }

func (c *MockClient) next() (models.Frame, bool) {
	select {
	case f := <-c.RecvChannel:
		return f, true
	default:
		return models.Frame{}, false
	}
}
