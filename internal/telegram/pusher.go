package telegram

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/notify"
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// sender is the subset of *tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TokenLister returns the registered delivery targets of a user.
type TokenLister interface {
	ListDeviceTokens(ctx context.Context, userID string, platform models.Platform) ([]models.DeviceToken, error)
}

type slotKey struct {
	chatID int64
	tag    string
}

// Pusher delivers background notifications as Telegram messages. Each room
// tag owns one slot per chat: a new notification replaces the previous one.
type Pusher struct {
	api    sender
	tokens TokenLister

	mu    sync.Mutex
	slots map[slotKey]int
}

func NewPusher(api sender, tokens TokenLister) *Pusher {
	return &Pusher{api: api, tokens: tokens, slots: make(map[slotKey]int)}
}

// Push implements notify.Pusher.
func (p *Pusher) Push(ctx context.Context, viewerID string, n models.Notification) error {
	tokens, err := p.tokens.ListDeviceTokens(ctx, viewerID, models.PlatformTelegram)
	if err != nil {
		return fmt.Errorf("list telegram tokens: %w", err)
	}
	if len(tokens) == 0 {
		return notify.ErrNoDeliveryTarget
	}

	var lastErr error
	sent := 0
	for _, t := range tokens {
		if !t.NotificationsEnabled {
			continue
		}
		chatID, err := strconv.ParseInt(t.Token, 10, 64)
		if err != nil {
			log.Warn().Str("user_id", viewerID).Str("token", t.Token).Msg("telegram: malformed chat id")
			continue
		}
		if err := p.pushTo(chatID, n); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	switch {
	case sent > 0:
		return nil
	case lastErr != nil:
		return lastErr
	}
	return notify.ErrPermissionDenied
}

func (p *Pusher) pushTo(chatID int64, n models.Notification) error {
	key := slotKey{chatID: chatID, tag: n.Tag}

	p.mu.Lock()
	prev, ok := p.slots[key]
	p.mu.Unlock()
	if ok {
		if _, err := p.api.Request(tgbotapi.NewDeleteMessage(chatID, prev)); err != nil {
			log.Debug().Err(err).Int64("chat_id", chatID).Msg("telegram: previous slot already gone")
		}
	}

	msg := tgbotapi.NewMessage(chatID, format(n))
	spec, known := notify.Channels[notify.Channel(n.Channel)]
	msg.DisableNotification = known && !spec.Loud()

	sentMsg, err := p.api.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}

	p.mu.Lock()
	p.slots[key] = sentMsg.MessageID
	p.mu.Unlock()
	return nil
}

func format(n models.Notification) string {
	if n.Title == "" {
		return n.Body
	}
	return n.Title + "\n" + n.Body
}
