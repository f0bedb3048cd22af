package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CycleStatus is the lifecycle of one run of the multi-step process.
type CycleStatus string

const (
	CycleActive    CycleStatus = "active"
	CycleCompleted CycleStatus = "completed"
)

// StepStatus is the derived state of a single step inside a cycle.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "completed"
)

// ProcessCycle is one complete run of the adoption process for a user.
type ProcessCycle struct {
	ID             string        `gorm:"primaryKey" json:"id"`
	UserID         string        `gorm:"not null;index" json:"user_id"`
	CycleNumber    int           `gorm:"not null" json:"cycle_number"`
	Status         CycleStatus   `gorm:"type:text;not null;index" json:"status"`
	CurrentStep    int           `gorm:"not null" json:"current_step"`
	CompletedSteps pq.Int64Array `gorm:"type:integer[]" json:"completed_steps"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// BeforeCreate generates the cycle id.
func (c *ProcessCycle) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// StepStatus derives the state of step from the cycle fields.
func (c *ProcessCycle) StepStatus(step int) StepStatus {
	for _, done := range c.CompletedSteps {
		if int(done) == step {
			return StepDone
		}
	}
	if c.Status == CycleActive && c.CurrentStep == step {
		return StepActive
	}
	return StepPending
}
