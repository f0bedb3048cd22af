package storage

import (
	"adoptchat/backend/internal/models"
	"context"
	"fmt"
)

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Service) SetUserRole(ctx context.Context, userID string, role models.Role) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FirstStaffID sorts with the "C" collation so the order is ordinal (byte
// order) regardless of the database locale.
func (s *Service) FirstStaffID(ctx context.Context) (string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", models.RoleStaff).
		Order(`id COLLATE "C" ASC`).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("select staff: %w", err)
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	return ids[0], nil
}
