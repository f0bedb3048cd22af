// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/presence"
	"adoptchat/backend/internal/storage"
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is a goroutine-safe in-memory implementation of storage.Storage,
// storage.Broadcaster and the notification seen-store.
type MemStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	rooms    map[string]models.ChatRoom
	messages map[string][]models.Message
	cycles   map[string]models.ProcessCycle
	tokens   []models.DeviceToken
	seen     map[string]time.Time
	presence map[string]map[string]devicePresence
	fail     map[string]error

	// Published receives every message passed to PublishMessage.
	Published chan models.Message
}

// New returns an empty store.
func New() *MemStore {
	return &MemStore{
		users:     make(map[string]models.User),
		rooms:     make(map[string]models.ChatRoom),
		messages:  make(map[string][]models.Message),
		cycles:    make(map[string]models.ProcessCycle),
		seen:      make(map[string]time.Time),
		presence:  make(map[string]map[string]devicePresence),
		fail:      make(map[string]error),
		Published: make(chan models.Message, 256),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *MemStore) failure(method string) error {
	return m.fail[method]
}

// AddUser seeds a user.
func (m *MemStore) AddUser(id, username string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = models.User{ID: id, Username: username, Role: role, CreatedAt: time.Now()}
}

// RoomCount returns the number of stored rooms.
func (m *MemStore) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *MemStore) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SaveUser"); err != nil {
		return err
	}
	if err := user.BeforeCreate(nil); err != nil {
		return err
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemStore) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (m *MemStore) SetUserRole(_ context.Context, userID string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.Role = role
	m.users[userID] = u
	return nil
}

func (m *MemStore) FirstStaffID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("FirstStaffID"); err != nil {
		return "", err
	}
	first := ""
	for id, u := range m.users {
		if u.Role.IsStaff() && (first == "" || id < first) {
			first = id
		}
	}
	if first == "" {
		return "", storage.ErrNotFound
	}
	return first, nil
}

func (m *MemStore) GetRoom(_ context.Context, roomID string) (*models.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetRoom"); err != nil {
		return nil, err
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (m *MemStore) FindRoomForUser(_ context.Context, userID string) (*models.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("FindRoomForUser"); err != nil {
		return nil, err
	}
	var found *models.ChatRoom
	for _, r := range m.rooms {
		r := r
		if r.ParticipantUser != userID {
			continue
		}
		if found == nil || r.LastActivity.After(found.LastActivity) {
			found = &r
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (m *MemStore) UpsertRoom(_ context.Context, room *models.ChatRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpsertRoom"); err != nil {
		return err
	}
	existing, ok := m.rooms[room.RoomID]
	if !ok {
		if room.CreatedAt.IsZero() {
			room.CreatedAt = time.Now().UTC()
		}
		m.rooms[room.RoomID] = *room
		return nil
	}
	existing.LastMessage = room.LastMessage
	existing.LastMessageTimestamp = room.LastMessageTimestamp
	existing.LastActivity = room.LastActivity
	m.rooms[room.RoomID] = existing
	return nil
}

func (m *MemStore) ListRooms(_ context.Context, viewerID string, role models.Role) ([]models.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListRooms"); err != nil {
		return nil, err
	}
	rooms := make([]models.ChatRoom, 0, len(m.rooms))
	for _, r := range m.rooms {
		if role.IsStaff() || r.HasParticipant(viewerID) {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastActivity.After(rooms[j].LastActivity) })
	return rooms, nil
}

func (m *MemStore) IncrementUnread(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("IncrementUnread"); err != nil {
		return err
	}
	if r, ok := m.rooms[roomID]; ok {
		r.UnreadCount++
		m.rooms[roomID] = r
	}
	return nil
}

func (m *MemStore) SetUnread(_ context.Context, roomID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		r.UnreadCount = n
		m.rooms[roomID] = r
	}
	return nil
}

func (m *MemStore) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return storage.ErrNotFound
	}
	delete(m.rooms, roomID)
	delete(m.messages, roomID)
	return nil
}

func (m *MemStore) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AppendMessage"); err != nil {
		return err
	}
	if err := msg.BeforeCreate(nil); err != nil {
		return err
	}
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], *msg)
	return nil
}

func (m *MemStore) find(messageID string) (string, int) {
	for roomID, log := range m.messages {
		for i := range log {
			if log[i].MessageID == messageID {
				return roomID, i
			}
		}
	}
	return "", -1
}

func (m *MemStore) GetMessage(_ context.Context, messageID string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, i := m.find(messageID)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	msg := m.messages[roomID][i]
	return &msg, nil
}

func (m *MemStore) ListMessages(_ context.Context, roomID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListMessages"); err != nil {
		return nil, err
	}
	out := append([]models.Message(nil), m.messages[roomID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ServerTimestamp.Before(out[j].ServerTimestamp) })
	return out, nil
}

func (m *MemStore) MarkRead(_ context.Context, roomID, viewerID string, includeSystem bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("MarkRead"); err != nil {
		return 0, err
	}
	var n int64
	log := m.messages[roomID]
	for i := range log {
		if log[i].ReadByReceiver {
			continue
		}
		if log[i].ReceiverID == viewerID || (includeSystem && log[i].IsFromSystem()) {
			log[i].ReadByReceiver = true
			n++
		}
	}
	return n, nil
}

func (m *MemStore) UpdateMessage(_ context.Context, messageID string, patch storage.MessagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateMessage"); err != nil {
		return err
	}
	roomID, i := m.find(messageID)
	if i < 0 {
		return storage.ErrNotFound
	}
	patch.Apply(&m.messages[roomID][i])
	return nil
}

func (m *MemStore) GetActiveCycle(_ context.Context, userID string) (*models.ProcessCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.ProcessCycle
	for _, c := range m.cycles {
		c := c
		if c.UserID == userID && c.Status == models.CycleActive && (found == nil || c.CycleNumber > found.CycleNumber) {
			found = &c
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	found.CompletedSteps = append(found.CompletedSteps[:0:0], found.CompletedSteps...)
	return found, nil
}

// Cycles returns every stored cycle of userID ordered by number.
func (m *MemStore) Cycles(userID string) []models.ProcessCycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcessCycle
	for _, c := range m.cycles {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CycleNumber < out[j].CycleNumber })
	return out
}

func (m *MemStore) CreateCycle(_ context.Context, cycle *models.ProcessCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateCycle"); err != nil {
		return err
	}
	if cycle.Status == models.CycleActive {
		for _, c := range m.cycles {
			if c.UserID == cycle.UserID && c.Status == models.CycleActive {
				return storage.ErrConflict
			}
		}
	}
	if err := cycle.BeforeCreate(nil); err != nil {
		return err
	}
	m.cycles[cycle.ID] = *cycle
	return nil
}

func (m *MemStore) SaveCycleTransition(_ context.Context, current *models.ProcessCycle, fromStep int, next *models.ProcessCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SaveCycleTransition"); err != nil {
		return err
	}
	stored, ok := m.cycles[current.ID]
	if !ok || stored.Status != models.CycleActive || stored.CurrentStep != fromStep {
		return storage.ErrConflict
	}
	m.cycles[current.ID] = *current
	if next != nil {
		if err := next.BeforeCreate(nil); err != nil {
			return err
		}
		m.cycles[next.ID] = *next
	}
	return nil
}

func (m *MemStore) SaveDeviceToken(_ context.Context, token *models.DeviceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SaveDeviceToken"); err != nil {
		return err
	}
	for i := range m.tokens {
		if m.tokens[i].Platform == token.Platform && m.tokens[i].Token == token.Token {
			m.tokens[i].UserID = token.UserID
			m.tokens[i].NotificationsEnabled = token.NotificationsEnabled
			return nil
		}
	}
	token.ID = uint(len(m.tokens) + 1)
	m.tokens = append(m.tokens, *token)
	return nil
}

func (m *MemStore) ListDeviceTokens(_ context.Context, userID string, platform models.Platform) ([]models.DeviceToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeviceToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.Platform == platform {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) PublishMessage(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	err := m.failure("PublishMessage")
	m.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case m.Published <- msg:
	default:
	}
	return nil
}

func (m *MemStore) SubscribeMessages(_ context.Context) (<-chan models.Message, func() error) {
	return m.Published, func() error { return nil }
}

func (m *MemStore) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("MarkSeen"); err != nil {
		return false, err
	}
	if exp, ok := m.seen[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.seen[key] = time.Now().Add(ttl)
	return true, nil
}

type devicePresence struct {
	rec     presence.Record
	expires time.Time
}

func (m *MemStore) PutPresence(_ context.Context, viewerID, deviceID string, rec presence.Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("PutPresence"); err != nil {
		return err
	}
	devices, ok := m.presence[viewerID]
	if !ok {
		devices = make(map[string]devicePresence)
		m.presence[viewerID] = devices
	}
	devices[deviceID] = devicePresence{rec: rec, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemStore) DropPresence(_ context.Context, viewerID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DropPresence"); err != nil {
		return err
	}
	delete(m.presence[viewerID], deviceID)
	return nil
}

func (m *MemStore) LoadPresence(_ context.Context, viewerID string) ([]presence.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("LoadPresence"); err != nil {
		return nil, err
	}
	now := time.Now()
	var out []presence.Record
	for _, d := range m.presence[viewerID] {
		if now.Before(d.expires) {
			out = append(out, d.rec)
		}
	}
	return out, nil
}
