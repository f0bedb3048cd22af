package chathub

import (
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/models"
)

// fanOut pushes a message published by any instance to the connections of its
// sender and receiver, and to every staff connection.
// Each viewer gets the wording for their role.
func (m *ManagerService) fanOut(msg models.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for userID, set := range m.Clients {
		for c := range set {
			isParty := userID == msg.SenderID || userID == msg.ReceiverID
			if !isParty && !c.GetRole().IsStaff() {
				continue
			}
			if !msg.VisibleTo(userID) {
				continue
			}
			m.deliver(c, models.Frame{
				Type:    models.FrameMessage,
				RoomID:  msg.RoomID,
				Message: chat.Render(msg, c.GetRole()),
			})
		}
	}
}
