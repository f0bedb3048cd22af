// Package presence tracks which room each connected device is looking at.
// Nothing here is persisted; a device's state disappears with its connection.
// A Registry may mirror its devices into a Mirror so every instance sees the
// viewers connected to the others.
package presence

import (
	"adoptchat/backend/internal/config"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// mirrorTimeout bounds a single call to the shared presence store.
const mirrorTimeout = 2 * time.Second

// Mirror is presence shared between instances. Entries older than their ttl
// are not returned.
type Mirror interface {
	PutPresence(ctx context.Context, viewerID, deviceID string, rec Record, ttl time.Duration) error
	DropPresence(ctx context.Context, viewerID, deviceID string) error
	LoadPresence(ctx context.Context, viewerID string) ([]Record, error)
}

// Record is the snapshot of one device.
type Record struct {
	RoomID     string
	Foreground bool
}

// IsViewing reports whether the record has roomID open in the foreground.
func (r Record) IsViewing(roomID string) bool {
	return roomID != "" && r.Foreground && r.RoomID == roomID
}

// State is the presence of a single device.
type State struct {
	id  string
	mu  sync.RWMutex
	rec Record
}

// ID identifies the device in the shared store.
func (s *State) ID() string { return s.id }

// Enter marks roomID as the open, foregrounded view.
func (s *State) Enter(roomID string) {
	s.mu.Lock()
	s.rec = Record{RoomID: roomID, Foreground: true}
	s.mu.Unlock()
}

// Leave clears the open room.
func (s *State) Leave() {
	s.mu.Lock()
	s.rec = Record{}
	s.mu.Unlock()
}

// SetForeground records whether the app is in front. The open room is kept.
func (s *State) SetForeground(fg bool) {
	s.mu.Lock()
	s.rec.Foreground = fg
	s.mu.Unlock()
}

func (s *State) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// IsViewing reports whether roomID is open and in the foreground.
func (s *State) IsViewing(roomID string) bool {
	return s.Snapshot().IsViewing(roomID)
}

// Registry maps viewers to the presence of each of their devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]map[*State]struct{}

	mirror Mirror
	ttl    time.Duration
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]map[*State]struct{})}
}

// Share mirrors every device into m. Devices must be republished with
// Publish more often than ttl or other instances stop seeing them.
func (r *Registry) Share(m Mirror, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = config.DefaultPresenceTTL
	}
	r.mirror, r.ttl = m, ttl
	return r
}

// TTL is the lifetime of a published device entry, zero when not shared.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Add registers a device for viewerID and returns its state.
func (r *Registry) Add(viewerID string) *State {
	st := &State{id: uuid.NewString()}
	r.mu.Lock()
	set, ok := r.devices[viewerID]
	if !ok {
		set = make(map[*State]struct{})
		r.devices[viewerID] = set
	}
	set[st] = struct{}{}
	r.mu.Unlock()

	r.Publish(viewerID, st)
	return st
}

// Publish writes the current state of st to the shared store. Failures are
// logged; local answers stay correct.
func (r *Registry) Publish(viewerID string, st *State) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := r.mirror.PutPresence(ctx, viewerID, st.ID(), st.Snapshot(), r.ttl); err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Msg("presence: publish failed")
	}
}

// Remove forgets a device.
func (r *Registry) Remove(viewerID string, st *State) {
	r.mu.Lock()
	set := r.devices[viewerID]
	delete(set, st)
	if len(set) == 0 {
		delete(r.devices, viewerID)
	}
	r.mu.Unlock()

	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := r.mirror.DropPresence(ctx, viewerID, st.ID()); err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Msg("presence: drop failed")
	}
}

// Foregrounded reports whether any device of viewerID, on this instance or a
// shared one, has roomID open in the foreground.
func (r *Registry) Foregrounded(viewerID, roomID string) bool {
	if r.local(viewerID, func(set map[*State]struct{}) bool {
		for st := range set {
			if st.IsViewing(roomID) {
				return true
			}
		}
		return false
	}) {
		return true
	}
	for _, rec := range r.remote(viewerID) {
		if rec.IsViewing(roomID) {
			return true
		}
	}
	return false
}

// Online reports whether viewerID has at least one live device anywhere.
func (r *Registry) Online(viewerID string) bool {
	if r.local(viewerID, func(set map[*State]struct{}) bool { return len(set) > 0 }) {
		return true
	}
	return len(r.remote(viewerID)) > 0
}

func (r *Registry) local(viewerID string, fn func(map[*State]struct{}) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.devices[viewerID])
}

func (r *Registry) remote(viewerID string) []Record {
	if r.mirror == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	recs, err := r.mirror.LoadPresence(ctx, viewerID)
	if err != nil {
		log.Warn().Err(err).Str("viewer_id", viewerID).Msg("presence: load failed")
		return nil
	}
	return recs
}
