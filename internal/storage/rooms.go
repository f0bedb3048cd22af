package storage

import (
	"adoptchat/backend/internal/models"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var roomSummaryColumns = []string{"last_message", "last_message_timestamp", "last_activity"}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *Service) FindRoomForUser(ctx context.Context, userID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.DB.WithContext(ctx).
		Where("participant_user = ?", userID).
		Order("last_activity DESC").
		First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// UpsertRoom uses INSERT ... ON CONFLICT (room_id) DO UPDATE so that two
// concurrent first events for the same pair collapse into one row.
func (s *Service) UpsertRoom(ctx context.Context, room *models.ChatRoom) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns(roomSummaryColumns),
	}).Create(room).Error
}

// ListRooms returns the viewer's inbox. Staff work as a shared pool and see
// every room; everyone else sees the rooms they participate in.
func (s *Service) ListRooms(ctx context.Context, viewerID string, role models.Role) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	q := s.DB.WithContext(ctx).Model(&models.ChatRoom{})
	if !role.IsStaff() {
		q = q.Where("(participant_user = ? OR participant_admin = ?)", viewerID, viewerID)
	}
	if err := q.Order("last_activity DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *Service) IncrementUnread(ctx context.Context, roomID string) error {
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

func (s *Service) SetUnread(ctx context.Context, roomID string, n int) error {
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		UpdateColumn("unread_count", n).Error
}

func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("room_id = ?", roomID).Delete(&models.ChatRoom{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
