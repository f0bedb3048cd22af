package storage

import (
	"adoptchat/backend/internal/presence"
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const presenceKeyBase = "presence:"

// presenceEntry is one device field of a viewer's presence hash.
type presenceEntry struct {
	RoomID     string `json:"room_id,omitempty"`
	Foreground bool   `json:"foreground"`
	ExpiresAt  int64  `json:"expires_at"`
}

// PutPresence stores a device under the viewer's hash and extends the hash
// lifetime to ttl.
func (s *Service) PutPresence(ctx context.Context, viewerID, deviceID string, rec presence.Record, ttl time.Duration) error {
	payload, err := json.Marshal(presenceEntry{
		RoomID:     rec.RoomID,
		Foreground: rec.Foreground,
		ExpiresAt:  time.Now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return err
	}
	key := presenceKeyBase + viewerID
	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, key, deviceID, payload)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Service) DropPresence(ctx context.Context, viewerID, deviceID string) error {
	return s.Redis.HDel(ctx, presenceKeyBase+viewerID, deviceID).Err()
}

// LoadPresence returns the live devices of viewerID. Fields of devices that
// stopped refreshing are skipped.
func (s *Service) LoadPresence(ctx context.Context, viewerID string) ([]presence.Record, error) {
	fields, err := s.Redis.HGetAll(ctx, presenceKeyBase+viewerID).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	out := make([]presence.Record, 0, len(fields))
	for device, raw := range fields {
		var e presenceEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Warn().Err(err).Str("device_id", device).Msg("presence: undecodable entry")
			continue
		}
		if e.ExpiresAt <= now {
			continue
		}
		out = append(out, presence.Record{RoomID: e.RoomID, Foreground: e.Foreground})
	}
	return out, nil
}
