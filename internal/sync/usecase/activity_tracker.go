package usecase

import (
	"sync"
	"time"

	syncdomain "mailpilot-backend/internal/sync/domain"
	syncrepo "mailpilot-backend/internal/sync/repository"
)

// ActivityTracker records user activity signals with a per-user write
// throttle, so a burst of requests produces one persisted update. Recording
// is idempotent: a throttled call is a successful no-op.
type ActivityTracker struct {
	states   syncrepo.SyncStateRepository
	throttle time.Duration

	mu        sync.Mutex
	lastWrite map[string]time.Time

	now func() time.Time
}

func NewActivityTracker(states syncrepo.SyncStateRepository, throttle time.Duration) *ActivityTracker {
	if throttle <= 0 {
		throttle = 30 * time.Second
	}
	return &ActivityTracker{
		states:    states,
		throttle:  throttle,
		lastWrite: make(map[string]time.Time),
		now:       time.Now,
	}
}

// RecordActivity persists the user's last-active timestamp unless one was
// written inside the throttle window. The cached level is trivially
// very_active at the moment of activity; the scheduler re-derives it anyway.
func (t *ActivityTracker) RecordActivity(userID string) error {
	now := t.now()

	t.mu.Lock()
	if last, ok := t.lastWrite[userID]; ok && now.Sub(last) < t.throttle {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	// Only a successful write starts a throttle window; a failed one must
	// not suppress the retry on the next signal.
	if err := t.states.UpdateActivity(userID, now, syncdomain.ActivityVeryActive); err != nil {
		return err
	}

	t.mu.Lock()
	t.lastWrite[userID] = now
	t.mu.Unlock()
	return nil
}
