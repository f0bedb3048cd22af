// Package telegram is the background notification transport. The bot links a
// Telegram chat to an account through /start <link-token> and then receives
// notifications for that account while the app is closed.
package telegram

import (
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/localization"
	"adoptchat/backend/internal/models"
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Registrar stores a delivery token for a user.
type Registrar interface {
	Register(ctx context.Context, userID string, platform models.Platform, token string) error
}

// BotService receives Telegram updates.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	api       sender
	Registrar Registrar
	Localizer *localization.Localizer
	Secret    string
}

// NewBotService authorizes the bot token.
func NewBotService(token, secret string, r Registrar, l *localization.Localizer) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info().Str("account", bot.Self.UserName).Msg("telegram bot authorized")

	return &BotService{BotAPI: bot, api: bot, Registrar: r, Localizer: l, Secret: secret}, nil
}

// Run consumes updates until ctx is cancelled.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *BotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	lang := localization.DefaultLang
	if msg.From != nil {
		lang = s.Localizer.Lang(msg.From.LanguageCode)
	}

	key := "telegram.help"
	if msg.IsCommand() && msg.Command() == "start" {
		if payload := strings.TrimSpace(msg.CommandArguments()); payload != "" {
			key = s.link(ctx, msg.Chat.ID, payload)
		}
	}
	s.reply(msg.Chat.ID, s.Localizer.GetString(lang, key))
}

// link attaches chatID to the account named by the link token and returns the
// localization key of the reply.
func (s *BotService) link(ctx context.Context, chatID int64, token string) string {
	claims, err := auth.ParseLinkToken(token, s.Secret)
	if err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Msg("telegram: bad link token")
		return "telegram.link_invalid"
	}
	if err := s.Registrar.Register(ctx, claims.UserID, models.PlatformTelegram, strconv.FormatInt(chatID, 10)); err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("telegram: link failed")
		return "telegram.link_failed"
	}
	log.Info().Str("user_id", claims.UserID).Int64("chat_id", chatID).Msg("telegram chat linked")
	return "telegram.linked"
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram: reply failed")
	}
}
