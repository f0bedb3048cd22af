package storage

import (
	"adoptchat/backend/internal/models"
	"context"
)

// AppendMessage inserts a new log entry. MessageID and ServerTimestamp are
// assigned by the model's BeforeCreate hook.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.DB.WithContext(ctx).Create(msg).Error
}

func (s *Service) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := s.DB.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *Service) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("server_timestamp ASC, message_id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flags every unread message addressed to viewerID as read. With
// includeSystem the platform's own messages in the room are flagged too,
// whoever they were addressed to.
func (s *Service) MarkRead(ctx context.Context, roomID, viewerID string, includeSystem bool) (int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND read_by_receiver = ?", roomID, false)
	if includeSystem {
		q = q.Where("(receiver_id = ? OR (is_system_message = ? AND sender_id = ?))", viewerID, true, models.SystemSenderID)
	} else {
		q = q.Where("receiver_id = ?", viewerID)
	}
	res := q.Update("read_by_receiver", true)
	return res.RowsAffected, res.Error
}

func (s *Service) UpdateMessage(ctx context.Context, messageID string, patch MessagePatch) error {
	cols := patch.columns()
	if len(cols) == 0 {
		return nil
	}
	res := s.DB.WithContext(ctx).Model(&models.Message{}).Where("message_id = ?", messageID).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
