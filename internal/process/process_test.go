package process

import (
	"adoptchat/backend/internal/models"
	"adoptchat/backend/internal/storage"
	"adoptchat/backend/internal/storage/storagetest"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) Dispatch(ctx context.Context, ev models.Event) {
	m.Called(ctx, ev)
}

func ofType(t models.EventType) interface{} {
	return mock.MatchedBy(func(ev models.Event) bool { return ev.Type() == t })
}

func TestAdvance(t *testing.T) {
	now := time.Now()
	c := NewCycle("u", 1, now)
	assert.Nil(t, Advance(c, now))
	assert.Equal(t, 3, c.CurrentStep)
	assert.Equal(t, pq.Int64Array{1, 2}, c.CompletedSteps)
	assert.Equal(t, models.StepDone, c.StepStatus(2))
	assert.Equal(t, models.StepActive, c.StepStatus(3))
	assert.Equal(t, models.StepPending, c.StepStatus(4))

	c.CurrentStep = 10
	next := Advance(c, now)
	require.NotNil(t, next)
	assert.Equal(t, models.CycleCompleted, c.Status)
	assert.NotNil(t, c.CompletedAt)
	assert.Equal(t, 2, next.CycleNumber)
	assert.Equal(t, models.CycleActive, next.Status)
	assert.Equal(t, models.StepDone, next.StepStatus(1))
	assert.Equal(t, models.StepActive, next.StepStatus(2))
}

func TestStart(t *testing.T) {
	s := storagetest.New()
	n := new(MockNotifier)
	n.On("Dispatch", mock.Anything, ofType(models.EventProcessStarted)).Return().Once()
	svc := NewService(s, n)
	ctx := context.Background()

	c, err := svc.Start(ctx, "u1", "Ulla")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CycleNumber)
	assert.Equal(t, 2, c.CurrentStep)

	_, err = svc.Start(ctx, "u1", "Ulla")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	n.AssertExpectations(t)
}

func TestStart_Concurrent(t *testing.T) {
	s := storagetest.New()
	n := new(MockNotifier)
	n.On("Dispatch", mock.Anything, ofType(models.EventProcessStarted)).Return().Once()
	svc := NewService(s, n)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(context.Background(), "u1", "Ulla")
			if err != nil {
				assert.ErrorIs(t, err, ErrAlreadyStarted)
				return
			}
			mu.Lock()
			started++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Len(t, s.Cycles("u1"), 1)
	n.AssertExpectations(t)
}

func TestCompleteStep_Order(t *testing.T) {
	s := storagetest.New()
	n := new(MockNotifier)
	n.On("Dispatch", mock.Anything, mock.Anything).Return()
	svc := NewService(s, n)
	ctx := context.Background()

	_, err := svc.CompleteStep(ctx, "u1", "Ulla", 2)
	assert.ErrorIs(t, err, ErrNoActiveCycle)

	_, err = svc.Start(ctx, "u1", "Ulla")
	require.NoError(t, err)

	_, err = svc.CompleteStep(ctx, "u1", "Ulla", 0)
	assert.ErrorIs(t, err, ErrInvalidStep)
	_, err = svc.CompleteStep(ctx, "u1", "Ulla", 11)
	assert.ErrorIs(t, err, ErrInvalidStep)
	_, err = svc.CompleteStep(ctx, "u1", "Ulla", 3)
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	c, err := svc.CompleteStep(ctx, "u1", "Ulla", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, c.CurrentStep)
	n.AssertCalled(t, "Dispatch", mock.Anything, mock.MatchedBy(func(ev models.Event) bool {
		sc, ok := ev.(models.StepCompleted)
		return ok && sc.Step == 2 && sc.StepTitle == "Document review"
	}))
}

func TestCompleteStep_LastStepRestartsCycle(t *testing.T) {
	s := storagetest.New()
	n := new(MockNotifier)
	n.On("Dispatch", mock.Anything, ofType(models.EventProcessStarted)).Return().Once()
	n.On("Dispatch", mock.Anything, ofType(models.EventStepCompleted)).Return().Times(8)
	n.On("Dispatch", mock.Anything, ofType(models.EventCycleRestarted)).Return().Once()
	svc := NewService(s, n)
	ctx := context.Background()

	_, err := svc.Start(ctx, "u1", "Ulla")
	require.NoError(t, err)

	var last *models.ProcessCycle
	for step := 2; step <= 10; step++ {
		last, err = svc.CompleteStep(ctx, "u1", "Ulla", step)
		require.NoError(t, err, "step %d", step)
	}

	assert.Equal(t, 2, last.CycleNumber)
	assert.Equal(t, 2, last.CurrentStep)

	cycles := s.Cycles("u1")
	require.Len(t, cycles, 2)
	assert.Equal(t, models.CycleCompleted, cycles[0].Status)
	assert.Len(t, cycles[0].CompletedSteps, 10)
	assert.Equal(t, models.CycleActive, cycles[1].Status)
	assert.Equal(t, pq.Int64Array{1}, cycles[1].CompletedSteps)

	active, err := svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cycles[1].ID, active.ID)

	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Dispatch", 10)
}

func TestCompleteStep_SaveFailureDispatchesNothing(t *testing.T) {
	s := storagetest.New()
	n := new(MockNotifier)
	n.On("Dispatch", mock.Anything, ofType(models.EventProcessStarted)).Return().Once()
	svc := NewService(s, n)
	ctx := context.Background()
	_, err := svc.Start(ctx, "u1", "Ulla")
	require.NoError(t, err)

	s.FailOn("SaveCycleTransition", storage.ErrConflict)
	_, err = svc.CompleteStep(ctx, "u1", "Ulla", 2)
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	boom := errors.New("db down")
	s.FailOn("SaveCycleTransition", boom)
	_, err = svc.CompleteStep(ctx, "u1", "Ulla", 2)
	assert.ErrorIs(t, err, boom)

	n.AssertNumberOfCalls(t, "Dispatch", 1)
}
