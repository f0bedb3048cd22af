// Package process keeps the ten-step adoption cycle of each user.
package process

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrInvalidStep    = errors.New("step out of range")
	ErrNoActiveCycle  = errors.New("no active process cycle")
	ErrStepOutOfOrder = errors.New("step is not the active step")
	ErrAlreadyStarted = errors.New("process already started")
)

// Notifier receives the events produced by cycle transitions.
type Notifier interface {
	Dispatch(ctx context.Context, ev models.Event)
}

type Service struct {
	Storage  storage.Storage
	Notifier Notifier
	now      func() time.Time
}

func NewService(s storage.Storage, n Notifier) *Service {
	return &Service{Storage: s, Notifier: n, now: func() time.Time { return time.Now().UTC() }}
}

// NewCycle returns a fresh cycle: step 1 done, step 2 active.
func NewCycle(userID string, number int, now time.Time) *models.ProcessCycle {
	return &models.ProcessCycle{
		UserID:         userID,
		CycleNumber:    number,
		Status:         models.CycleActive,
		CurrentStep:    2,
		CompletedSteps: pq.Int64Array{1},
		StartedAt:      now,
	}
}

// Advance completes the current step of c in place. Completing the last step
// closes c and returns the cycle that replaces it.
func Advance(c *models.ProcessCycle, now time.Time) (next *models.ProcessCycle) {
	c.CompletedSteps = append(c.CompletedSteps, int64(c.CurrentStep))
	if c.CurrentStep < config.ProcessStepCount {
		c.CurrentStep++
		return nil
	}
	c.Status = models.CycleCompleted
	c.CompletedAt = &now
	return NewCycle(c.UserID, c.CycleNumber+1, now)
}

// Start opens the first cycle for userID.
func (s *Service) Start(ctx context.Context, userID, username string) (*models.ProcessCycle, error) {
	_, err := s.Storage.GetActiveCycle(ctx, userID)
	if err == nil {
		return nil, ErrAlreadyStarted
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load cycle: %w", err)
	}

	c := NewCycle(userID, 1, s.now())
	err = s.Storage.CreateCycle(ctx, c)
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrAlreadyStarted
	}
	if err != nil {
		return nil, fmt.Errorf("create cycle: %w", err)
	}
	s.Notifier.Dispatch(ctx, models.ProcessStarted{
		Envelope:    models.Envelope{UserID: userID, Username: username},
		CycleID:     c.ID,
		CycleNumber: c.CycleNumber,
	})
	return c, nil
}

// CompleteStep marks step done. Steps complete strictly in order.
//
// The cycle state is saved before any message is dispatched. Finishing the last
// step closes the cycle and opens the next one in the same write, and only the
// restart is announced.
func (s *Service) CompleteStep(ctx context.Context, userID, username string, step int) (*models.ProcessCycle, error) {
	if step < 1 || step > config.ProcessStepCount {
		return nil, ErrInvalidStep
	}
	c, err := s.Storage.GetActiveCycle(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveCycle
	}
	if err != nil {
		return nil, fmt.Errorf("load cycle: %w", err)
	}
	if c.CurrentStep != step {
		return nil, fmt.Errorf("%w: active step is %d", ErrStepOutOfOrder, c.CurrentStep)
	}

	next := Advance(c, s.now())
	if err := s.Storage.SaveCycleTransition(ctx, c, step, next); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrStepOutOfOrder
		}
		return nil, fmt.Errorf("save cycle: %w", err)
	}

	env := models.Envelope{UserID: userID, Username: username}
	if next != nil {
		s.Notifier.Dispatch(ctx, models.CycleRestarted{
			Envelope:         env,
			CompletedCycleID: c.ID,
			NewCycleID:       next.ID,
			CycleNumber:      next.CycleNumber,
		})
		return next, nil
	}
	s.Notifier.Dispatch(ctx, models.StepCompleted{
		Envelope:    env,
		CycleID:     c.ID,
		CycleNumber: c.CycleNumber,
		Step:        step,
		StepTitle:   config.StepTitle(step),
	})
	return c, nil
}

// Active returns the user's current cycle.
func (s *Service) Active(ctx context.Context, userID string) (*models.ProcessCycle, error) {
	c, err := s.Storage.GetActiveCycle(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveCycle
	}
	return c, err
}
