package usecase

import (
	"fmt"
	"time"

	syncdomain "mailpilot-backend/internal/sync/domain"
	syncrepo "mailpilot-backend/internal/sync/repository"
)

// Batch is one tier's worth of due users for a single cycle.
type Batch struct {
	Tier  syncdomain.ActivityLevel
	Users []*syncdomain.SyncState
}

// Scheduler decides who is due for a sync. Candidates come from a single
// repository query (connected, active inside the somewhat_active window);
// the tier and due-ness decisions are made here against the wall clock.
type Scheduler struct {
	states    syncrepo.SyncStateRepository
	intervals map[syncdomain.ActivityLevel]time.Duration
}

func NewScheduler(states syncrepo.SyncStateRepository, veryActive, active, somewhatActive time.Duration) *Scheduler {
	return &Scheduler{
		states: states,
		intervals: map[syncdomain.ActivityLevel]time.Duration{
			syncdomain.ActivityVeryActive:     veryActive,
			syncdomain.ActivityActive:         active,
			syncdomain.ActivitySomewhatActive: somewhatActive,
		},
	}
}

// DueBatches returns the users due for sync, bucketed by re-derived tier and
// ordered most-active first. A user lands in at most one batch. Inactive
// users are never scheduled; never-synced connected users inside the window
// are always due.
func (s *Scheduler) DueBatches(now time.Time) ([]*Batch, error) {
	cutoff := now.Add(-syncdomain.SomewhatActiveWindow)
	candidates, err := s.states.FindConnectedActiveSince(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync candidates: %w", err)
	}

	buckets := make(map[syncdomain.ActivityLevel][]*syncdomain.SyncState)
	for _, state := range candidates {
		tier := syncdomain.ClassifyActivity(state.LastActiveAt, now)
		interval, scheduled := s.intervals[tier]
		if !scheduled {
			continue
		}
		if state.Due(now, interval) {
			buckets[tier] = append(buckets[tier], state)
		}
	}

	order := []syncdomain.ActivityLevel{
		syncdomain.ActivityVeryActive,
		syncdomain.ActivityActive,
		syncdomain.ActivitySomewhatActive,
	}
	var batches []*Batch
	for _, tier := range order {
		if len(buckets[tier]) > 0 {
			batches = append(batches, &Batch{Tier: tier, Users: buckets[tier]})
		}
	}
	return batches, nil
}
