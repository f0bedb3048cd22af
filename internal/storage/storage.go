// Package storage persists rooms, messages, users, process cycles and device
// tokens in PostgreSQL (gorm) and uses Redis for cross-instance fan-out and
// notification de-duplication.
package storage

import (
	"adoptchat/backend/internal/models"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is the lookup failure for rooms, users, messages and cycles.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("concurrent update")
)

// Storage is the persistence boundary used by every service.
type Storage interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	SetUserRole(ctx context.Context, userID string, role models.Role) error
	// FirstStaffID returns the staff id that sorts first under ordinal
	// comparison, or ErrNotFound when no staff account exists.
	FirstStaffID(ctx context.Context) (string, error)

	GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error)
	// FindRoomForUser returns the most recently active room in which userID
	// is the non-staff participant.
	FindRoomForUser(ctx context.Context, userID string) (*models.ChatRoom, error)
	// UpsertRoom creates the room if absent. If it already exists only the
	// summary fields (last_message, last_message_timestamp, last_activity)
	// are merged; connection_type and the participants are never rewritten.
	UpsertRoom(ctx context.Context, room *models.ChatRoom) error
	ListRooms(ctx context.Context, viewerID string, role models.Role) ([]models.ChatRoom, error)
	IncrementUnread(ctx context.Context, roomID string) error
	SetUnread(ctx context.Context, roomID string, n int) error
	// DeleteRoom removes the room and its entire message log.
	DeleteRoom(ctx context.Context, roomID string) error

	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	// ListMessages returns the room log ordered by server timestamp.
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	MarkRead(ctx context.Context, roomID, viewerID string, includeSystem bool) (int64, error)
	UpdateMessage(ctx context.Context, messageID string, patch MessagePatch) error

	GetActiveCycle(ctx context.Context, userID string) (*models.ProcessCycle, error)
	CreateCycle(ctx context.Context, cycle *models.ProcessCycle) error
	// SaveCycleTransition stores the advanced cycle, guarded on its previous
	// step, and creates next (if any) in the same transaction.
	SaveCycleTransition(ctx context.Context, current *models.ProcessCycle, fromStep int, next *models.ProcessCycle) error

	SaveDeviceToken(ctx context.Context, token *models.DeviceToken) error
	ListDeviceTokens(ctx context.Context, userID string, platform models.Platform) ([]models.DeviceToken, error)
}

// Broadcaster fans appended messages out to every server instance.
type Broadcaster interface {
	PublishMessage(ctx context.Context, msg models.Message) error
	SubscribeMessages(ctx context.Context) (<-chan models.Message, func() error)
}

// MessagePatch lists the mutable parts of a stored message. Nil fields are left alone.
type MessagePatch struct {
	ReadByReceiver     *bool
	DeletedBySender    *bool
	DeletedByReceiver  *bool
	DeletedForEveryone *bool
	Body               *string
	EditedTimestamp    *time.Time
}

func (p MessagePatch) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.ReadByReceiver != nil {
		cols["read_by_receiver"] = *p.ReadByReceiver
	}
	if p.DeletedBySender != nil {
		cols["deleted_by_sender"] = *p.DeletedBySender
	}
	if p.DeletedByReceiver != nil {
		cols["deleted_by_receiver"] = *p.DeletedByReceiver
	}
	if p.DeletedForEveryone != nil {
		cols["deleted_for_everyone"] = *p.DeletedForEveryone
	}
	if p.Body != nil {
		cols["message"] = *p.Body
	}
	if p.EditedTimestamp != nil {
		cols["edited"] = true
		cols["edited_timestamp"] = *p.EditedTimestamp
	}
	return cols
}

// Apply copies the patch onto an in-memory message.
func (p MessagePatch) Apply(m *models.Message) {
	if p.ReadByReceiver != nil {
		m.ReadByReceiver = *p.ReadByReceiver
	}
	if p.DeletedBySender != nil {
		m.DeletedBySender = *p.DeletedBySender
	}
	if p.DeletedByReceiver != nil {
		m.DeletedByReceiver = *p.DeletedByReceiver
	}
	if p.DeletedForEveryone != nil {
		m.DeletedForEveryone = *p.DeletedForEveryone
	}
	if p.Body != nil {
		m.Body = *p.Body
	}
	if p.EditedTimestamp != nil {
		ts := *p.EditedTimestamp
		m.Edited = true
		m.EditedTimestamp = &ts
	}
}

// Service is the PostgreSQL + Redis implementation of Storage and Broadcaster.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// Migrate creates or updates every table the service owns.
func (s *Service) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.Message{},
		&models.ProcessCycle{},
		&models.DeviceToken{},
	); err != nil {
		return err
	}
	// At most one active cycle per user.
	return s.DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_process_cycles_one_active
		ON process_cycles (user_id) WHERE status = 'active'`).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
