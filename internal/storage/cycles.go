package storage

import (
	"adoptchat/backend/internal/models"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Service) GetActiveCycle(ctx context.Context, userID string) (*models.ProcessCycle, error) {
	var cycle models.ProcessCycle
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.CycleActive).
		Order("cycle_number DESC").
		First(&cycle).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cycle, nil
}

// CreateCycle inserts cycle and returns ErrConflict when the user already has
// an active one.
func (s *Service) CreateCycle(ctx context.Context, cycle *models.ProcessCycle) error {
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "user_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status = 'active'"}}},
		DoNothing:   true,
	}).Create(cycle)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Service) SaveCycleTransition(ctx context.Context, current *models.ProcessCycle, fromStep int, next *models.ProcessCycle) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ProcessCycle{}).
			Where("id = ? AND status = ? AND current_step = ?", current.ID, models.CycleActive, fromStep).
			Updates(map[string]interface{}{
				"status":          current.Status,
				"current_step":    current.CurrentStep,
				"completed_steps": current.CompletedSteps,
				"completed_at":    current.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if next != nil {
			return tx.Create(next).Error
		}
		return nil
	})
}
