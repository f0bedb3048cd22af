package notify

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/presence"
	"adoptchat/backend/internal/storage/storagetest"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func chatMsg(id, room, sender, receiver string) *models.Message {
	return &models.Message{MessageID: id, RoomID: room, SenderID: sender, ReceiverID: receiver, SenderName: "Ann", Body: "hello"}
}

func sysMsg(id, room, receiver string, t models.MessageType) *models.Message {
	return &models.Message{
		MessageID:       id,
		RoomID:          room,
		SenderID:        models.SystemSenderID,
		ReceiverID:      receiver,
		IsSystemMessage: true,
		MessageType:     t,
		Body:            "Your toys donation was submitted",
		StaffBody:       "Ulla submitted a toys donation",
		Priority:        models.PriorityHigh,
	}
}

func TestChannelFor(t *testing.T) {
	cases := []struct {
		msg  *models.Message
		want Channel
	}{
		{chatMsg("1", "r", "a", "b"), ChannelChat},
		{sysMsg("2", "r", "u", models.MessageItemDonation), ChannelDonations},
		{sysMsg("3", "r", "u", models.MessageDonationRejected), ChannelDonations},
		{sysMsg("4", "r", "u", models.MessageStepCompleted), ChannelProcess},
		{sysMsg("5", "r", "u", models.MessageCycleRestarted), ChannelProcess},
		{sysMsg("6", "r", "u", models.MessageAppointmentScheduled), ChannelSystem},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ChannelFor(c.msg), string(c.msg.MessageType))
	}

	urgent := sysMsg("7", "r", "u", models.MessageAppointmentCancelled)
	urgent.Priority = models.PriorityUrgent
	assert.Equal(t, ChannelAlert, ChannelFor(urgent))
	assert.True(t, Channels[ChannelAlert].BypassDND)
	assert.True(t, Channels[ChannelChat].Loud())
	assert.False(t, Channels[ChannelDonations].Loud())
}

func TestTag_StablePerRoom(t *testing.T) {
	assert.Equal(t, Tag("a_b"), Tag("a_b"))
	assert.NotEqual(t, Tag("a_b"), Tag("a_c"))
}

func TestMemorySeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeen(2)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	first, _ := s.MarkSeen(ctx, "k1", time.Minute)
	again, _ := s.MarkSeen(ctx, "k1", time.Minute)
	assert.True(t, first)
	assert.False(t, again)

	now = now.Add(2 * time.Minute)
	expired, _ := s.MarkSeen(ctx, "k1", time.Minute)
	assert.True(t, expired)

	s.MarkSeen(ctx, "k2", time.Hour)
	s.MarkSeen(ctx, "k3", time.Hour)
	evicted, _ := s.MarkSeen(ctx, "k1", time.Hour)
	assert.True(t, evicted)
}

func TestRouter_ForegroundSuppression(t *testing.T) {
	reg := presence.NewRegistry()
	dev := reg.Add("user-1")
	dev.Enter("R")
	r := NewRouter(reg, NewMemorySeen(100), time.Hour)
	ctx := context.Background()

	d := r.Route(ctx, chatMsg("m1", "R", "staff-a", "user-1"))
	assert.True(t, d.Suppress)
	assert.Equal(t, ReasonForeground, d.Reason)

	d = r.Route(ctx, chatMsg("m2", "other", "staff-a", "user-1"))
	assert.False(t, d.Suppress)
	assert.Equal(t, ChannelChat, d.Channel)
	assert.Equal(t, Tag("other"), d.Tag)

	dev.SetForeground(false)
	d = r.Route(ctx, chatMsg("m3", "R", "staff-a", "user-1"))
	assert.False(t, d.Suppress)
}

func TestRouter_Dedupe(t *testing.T) {
	r := NewRouter(presence.NewRegistry(), NewMemorySeen(100), time.Hour)
	ctx := context.Background()
	msg := chatMsg("m1", "R", "staff-a", "user-1")

	assert.False(t, r.Route(ctx, msg).Suppress)
	second := r.Route(ctx, msg)
	assert.True(t, second.Suppress)
	assert.Equal(t, ReasonDuplicate, second.Reason)

	// other viewers are keyed separately
	assert.False(t, r.RouteFor(ctx, "staff-b", msg).Suppress)
	assert.Equal(t, ReasonSelf, r.RouteFor(ctx, "staff-a", msg).Reason)
}

type failingSeen struct{}

func (failingSeen) MarkSeen(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRouter_SeenStoreFailureDelivers(t *testing.T) {
	r := NewRouter(nil, failingSeen{}, time.Hour)
	assert.False(t, r.Route(context.Background(), chatMsg("m1", "R", "a", "b")).Suppress)
}

type MockPusher struct{ mock.Mock }

func (m *MockPusher) Push(ctx context.Context, viewerID string, n models.Notification) error {
	return m.Called(ctx, viewerID, n).Error(0)
}

func TestRecipients(t *testing.T) {
	room := &models.ChatRoom{RoomID: "R", ParticipantUser: "user-1", ParticipantAdmin: "staff-a"}
	assert.Equal(t, []string{"user-1", "staff-a"}, Recipients(sysMsg("m", "R", "user-1", models.MessageItemDonation), room))
	assert.Equal(t, []string{"user-1"}, Recipients(chatMsg("m", "R", "staff-a", "user-1"), room))
}

func TestService_Deliver(t *testing.T) {
	reg := presence.NewRegistry()
	reg.Add("staff-a") // staff online, user offline
	room := &models.ChatRoom{RoomID: "R", ParticipantUser: "user-1", ParticipantAdmin: "staff-a"}
	msg := sysMsg("m1", "R", "user-1", models.MessageItemDonation)

	inApp := new(MockPusher)
	bg := new(MockPusher)
	inApp.On("Push", mock.Anything, "staff-a", mock.MatchedBy(func(n models.Notification) bool {
		return n.Body == "Ulla submitted a toys donation" && n.Channel == string(ChannelDonations)
	})).Return(nil).Once()
	bg.On("Push", mock.Anything, "user-1", mock.MatchedBy(func(n models.Notification) bool {
		return n.Body == "Your toys donation was submitted" && n.Tag == Tag("R")
	})).Return(ErrNoDeliveryTarget).Once()

	svc := NewService(NewRouter(reg, NewMemorySeen(100), time.Hour), reg, inApp, bg)
	svc.Deliver(context.Background(), msg, room)
	// second arrival is a no-op
	svc.Deliver(context.Background(), msg, room)

	inApp.AssertExpectations(t)
	bg.AssertExpectations(t)
}

func TestService_ViewerOnAnotherInstance(t *testing.T) {
	store := storagetest.New()
	other := presence.NewRegistry().Share(store, time.Minute)
	here := presence.NewRegistry().Share(store, time.Minute)
	phone := other.Add("user-1")
	phone.Enter("R")
	other.Publish("user-1", phone)

	room := &models.ChatRoom{RoomID: "R", ParticipantUser: "user-1", ParticipantAdmin: "staff-a"}
	inApp := new(MockPusher)
	bg := new(MockPusher)
	inApp.On("Push", mock.Anything, "user-1", mock.Anything).Return(ErrNoDeliveryTarget).Once()
	svc := NewService(NewRouter(here, NewMemorySeen(100), time.Hour), here, inApp, bg)

	// looking at the room elsewhere: nothing at all
	svc.Deliver(context.Background(), chatMsg("m1", "R", "staff-a", "user-1"), room)
	inApp.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)

	// connected elsewhere but in another room: no background push
	phone.Enter("R2")
	other.Publish("user-1", phone)
	svc.Deliver(context.Background(), chatMsg("m2", "R", "staff-a", "user-1"), room)

	inApp.AssertExpectations(t)
	bg.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
}

type MockTokenStore struct{ mock.Mock }

func (m *MockTokenStore) SaveDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	return m.Called(ctx, token).Error(0)
}

func TestRegistrar_RetriesThenSucceeds(t *testing.T) {
	store := new(MockTokenStore)
	store.On("SaveDeviceToken", mock.Anything, mock.Anything).Return(errors.New("timeout")).Twice()
	store.On("SaveDeviceToken", mock.Anything, mock.Anything).Return(nil).Once()

	r := &Registrar{Storage: store, Attempts: 3, Backoff: time.Millisecond}
	require.NoError(t, r.Register(context.Background(), "user-1", models.PlatformTelegram, "42"))
	store.AssertNumberOfCalls(t, "SaveDeviceToken", 3)
}

func TestRegistrar_GivesUp(t *testing.T) {
	store := new(MockTokenStore)
	boom := errors.New("timeout")
	store.On("SaveDeviceToken", mock.Anything, mock.Anything).Return(boom)

	r := &Registrar{Storage: store, Attempts: 3, Backoff: time.Millisecond}
	err := r.Register(context.Background(), "user-1", models.PlatformTelegram, "42")
	assert.ErrorIs(t, err, boom)
	store.AssertNumberOfCalls(t, "SaveDeviceToken", 3)

	assert.Error(t, r.Register(context.Background(), "", models.PlatformTelegram, "42"))
}
