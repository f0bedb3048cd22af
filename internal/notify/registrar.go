package notify

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/models"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenStore is the part of storage the registrar needs.
type TokenStore interface {
	SaveDeviceToken(ctx context.Context, token *models.DeviceToken) error
}

// Registrar stores device delivery tokens. It is the only secondary effect
// that is retried.
type Registrar struct {
	Storage  TokenStore
	Attempts int
	Backoff  time.Duration
}

func NewRegistrar(s TokenStore) *Registrar {
	return &Registrar{Storage: s, Attempts: config.TokenRegisterAttempts, Backoff: config.TokenRegisterBackoff}
}

// Register saves token for userID, retrying with exponential backoff.
func (r *Registrar) Register(ctx context.Context, userID string, platform models.Platform, token string) error {
	if userID == "" || token == "" {
		return fmt.Errorf("register token: user and token are required")
	}

	var err error
	wait := r.Backoff
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		dt := &models.DeviceToken{UserID: userID, Platform: platform, Token: token, NotificationsEnabled: true}
		if err = r.Storage.SaveDeviceToken(ctx, dt); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("user_id", userID).Msg("token registration failed")
		if attempt == r.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("register token after %d attempts: %w", r.Attempts, err)
}
