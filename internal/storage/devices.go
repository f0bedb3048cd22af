package storage

import (
	"adoptchat/backend/internal/models"
	"context"

	"gorm.io/gorm/clause"
)

// SaveDeviceToken registers token, moving it to the new owner if the same
// device was linked before.
func (s *Service) SaveDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "notifications_enabled", "updated_at"}),
	}).Create(token).Error
}

func (s *Service) ListDeviceTokens(ctx context.Context, userID string, platform models.Platform) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
