package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityTrackerThrottlesWrites(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"))
	tracker := NewActivityTracker(states, 30*time.Second)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	require.NoError(t, tracker.RecordActivity("u1"))
	require.NoError(t, tracker.RecordActivity("u1"))
	now = now.Add(10 * time.Second)
	require.NoError(t, tracker.RecordActivity("u1"))
	assert.Equal(t, []string{"u1"}, states.updates, "burst collapses into one write")

	now = now.Add(30 * time.Second)
	require.NoError(t, tracker.RecordActivity("u1"))
	assert.Equal(t, []string{"u1", "u1"}, states.updates)
}

func TestActivityTrackerRetriesAfterFailedWrite(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"))
	states.updateErr = errors.New("db unavailable")
	tracker := NewActivityTracker(states, 30*time.Second)

	require.Error(t, tracker.RecordActivity("u1"))

	// The failed write must not have started a throttle window: the next
	// signal inside it still persists.
	states.mu.Lock()
	states.updateErr = nil
	states.mu.Unlock()
	require.NoError(t, tracker.RecordActivity("u1"))
	assert.Equal(t, []string{"u1"}, states.updates)
}

func TestActivityTrackerThrottleIsPerUser(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"), connectedState("u2"))
	tracker := NewActivityTracker(states, 30*time.Second)

	require.NoError(t, tracker.RecordActivity("u1"))
	require.NoError(t, tracker.RecordActivity("u2"))
	assert.Len(t, states.updates, 2)
}

func TestCronSkipsOverlappingCycles(t *testing.T) {
	states := newFakeStateRepo()
	states.findBlock = make(chan struct{})
	sched := NewScheduler(states, 2*time.Minute, 5*time.Minute, 15*time.Minute)
	exec := NewExecutor(newFakeUserRepo(), states, &fakeMetricsRepo{}, newFakeEmailRepo(), newFakeMail(), &fakeJobs{}, &fakeBus{}, 20)
	cron := NewCron(sched, exec, time.Minute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks inside the scheduler until findBlock is closed.
		assert.NoError(t, cron.TriggerOnce(context.Background()))
	}()

	require.Eventually(t, func() bool {
		return cron.inFlight.Load()
	}, time.Second, time.Millisecond)

	err := cron.TriggerOnce(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)

	close(states.findBlock)
	wg.Wait()
	assert.False(t, cron.inFlight.Load())
}
