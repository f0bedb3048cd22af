package storage

import (
	"adoptchat/backend/internal/models"
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	messageChannel  = "chat:messages"
	notifiedKeyBase = "notified:"
)

// PublishMessage публікує повідомлення в Redis Pub/Sub
func (s *Service) PublishMessage(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, messageChannel, payload).Err()
}

// SubscribeMessages streams messages published by any instance until ctx is
// cancelled or the returned close function is called.
func (s *Service) SubscribeMessages(ctx context.Context) (<-chan models.Message, func() error) {
	pubsub := s.Redis.Subscribe(ctx, messageChannel)
	out := make(chan models.Message, 64)

	go func() {
		defer close(out)
		for raw := range pubsub.Channel() {
			var msg models.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Warn().Err(err).Msg("pubsub: undecodable message")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close
}

// MarkSeen records key with SETNX and reports whether this call was the first.
func (s *Service) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.Redis.SetNX(ctx, notifiedKeyBase+key, 1, ttl).Result()
}
