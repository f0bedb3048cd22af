package telegram

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/localization"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/notify"
	"adoptchat/backend/internal/storage/storagetest"
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct{ mock.Mock }

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *MockSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	resp, _ := args.Get(0).(*tgbotapi.APIResponse)
	return resp, args.Error(1)
}

type MockRegistrar struct{ mock.Mock }

func (m *MockRegistrar) Register(ctx context.Context, userID string, platform models.Platform, token string) error {
	return m.Called(ctx, userID, platform, token).Error(0)
}

func notification(channel notify.Channel) models.Notification {
	return models.Notification{MessageID: "m1", RoomID: "R", Channel: string(channel), Tag: notify.Tag("R"), Title: "System", Body: "hello"}
}

func TestPusher_NoTargets(t *testing.T) {
	store := storagetest.New()
	p := NewPusher(new(MockSender), store)

	assert.ErrorIs(t, p.Push(context.Background(), "user-1", notification(notify.ChannelChat)), notify.ErrNoDeliveryTarget)

	require.NoError(t, store.SaveDeviceToken(context.Background(), &models.DeviceToken{
		UserID: "user-1", Platform: models.PlatformTelegram, Token: "42", NotificationsEnabled: false,
	}))
	assert.ErrorIs(t, p.Push(context.Background(), "user-1", notification(notify.ChannelChat)), notify.ErrPermissionDenied)
}

func TestPusher_SlotCollapsing(t *testing.T) {
	store := storagetest.New()
	require.NoError(t, store.SaveDeviceToken(context.Background(), &models.DeviceToken{
		UserID: "user-1", Platform: models.PlatformTelegram, Token: "42", NotificationsEnabled: true,
	}))
	api := new(MockSender)
	api.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.ChatID == 42 && c.Text == "System\nhello" && c.DisableNotification
	})).Return(tgbotapi.Message{MessageID: 7}, nil).Once()
	api.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool {
		return c.ChatID == 42 && !c.DisableNotification
	})).Return(tgbotapi.Message{MessageID: 8}, nil).Once()
	api.On("Request", tgbotapi.NewDeleteMessage(42, 7)).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

	p := NewPusher(api, store)
	require.NoError(t, p.Push(context.Background(), "user-1", notification(notify.ChannelDonations)))
	require.NoError(t, p.Push(context.Background(), "user-1", notification(notify.ChannelChat)))

	api.AssertExpectations(t)
	assert.Equal(t, 8, p.slots[slotKey{chatID: 42, tag: notify.Tag("R")}])
}

func TestPusher_SendFailure(t *testing.T) {
	store := storagetest.New()
	require.NoError(t, store.SaveDeviceToken(context.Background(), &models.DeviceToken{
		UserID: "user-1", Platform: models.PlatformTelegram, Token: "42", NotificationsEnabled: true,
	}))
	boom := errors.New("bot blocked")
	api := new(MockSender)
	api.On("Send", mock.Anything).Return(tgbotapi.Message{}, boom)

	err := NewPusher(api, store).Push(context.Background(), "user-1", notification(notify.ChannelChat))
	assert.ErrorIs(t, err, boom)
}

func startUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 42},
		From:     &tgbotapi.User{LanguageCode: "en"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len("/start")}},
	}}
}

func newBot(t *testing.T, api sender, r Registrar) *BotService {
	t.Helper()
	loc, err := localization.Bundled()
	require.NoError(t, err)
	return &BotService{api: api, Registrar: r, Localizer: loc, Secret: "s3cret"}
}

func replyText(text string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.MessageConfig) bool { return c.ChatID == 42 && c.Text == text })
}

func TestBot_LinkChat(t *testing.T) {
	tok, err := auth.GenerateLinkToken("user-1", "s3cret")
	require.NoError(t, err)

	api := new(MockSender)
	api.On("Send", replyText("Notifications are now enabled for this chat.")).Return(tgbotapi.Message{}, nil).Once()
	reg := new(MockRegistrar)
	reg.On("Register", mock.Anything, "user-1", models.PlatformTelegram, "42").Return(nil).Once()

	newBot(t, api, reg).handleUpdate(context.Background(), startUpdate("/start "+tok))

	api.AssertExpectations(t)
	reg.AssertExpectations(t)
}

func TestBot_LinkFailures(t *testing.T) {
	api := new(MockSender)
	api.On("Send", replyText("This link is invalid or expired. Open the app to get a new one.")).Return(tgbotapi.Message{}, nil).Once()
	api.On("Send", replyText("Could not enable notifications. Please try again later.")).Return(tgbotapi.Message{}, nil).Once()
	api.On("Send", replyText(`Open the app and tap "Connect Telegram" to receive notifications here.`)).Return(tgbotapi.Message{}, nil).Once()
	reg := new(MockRegistrar)
	reg.On("Register", mock.Anything, "user-1", models.PlatformTelegram, "42").Return(errors.New("db down")).Once()
	bot := newBot(t, api, reg)

	bot.handleUpdate(context.Background(), startUpdate("/start garbage"))

	tok, err := auth.GenerateLinkToken("user-1", "s3cret")
	require.NoError(t, err)
	bot.handleUpdate(context.Background(), startUpdate("/start "+tok))

	bot.handleUpdate(context.Background(), startUpdate("/start"))
	bot.handleUpdate(context.Background(), tgbotapi.Update{})

	api.AssertExpectations(t)
	reg.AssertExpectations(t)
}
