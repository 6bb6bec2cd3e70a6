package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyActivityBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		since time.Duration
		want  ActivityLevel
	}{
		{"just now", 0, ActivityVeryActive},
		{"just under five minutes", 5*time.Minute - time.Second, ActivityVeryActive},
		{"exactly five minutes", 5 * time.Minute, ActivityActive},
		{"just under thirty minutes", 30*time.Minute - time.Second, ActivityActive},
		{"exactly thirty minutes", 30 * time.Minute, ActivitySomewhatActive},
		{"just under two hours", 120*time.Minute - time.Second, ActivitySomewhatActive},
		{"exactly two hours", 120 * time.Minute, ActivityInactive},
		{"days ago", 72 * time.Hour, ActivityInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyActivity(now.Add(-tc.since), now)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSyncStateDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 5 * time.Minute
	syncedAt := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	t.Run("disconnected is never due", func(t *testing.T) {
		s := &SyncState{MailboxConnected: false}
		assert.False(t, s.Due(now, interval))
	})

	t.Run("never synced is always due", func(t *testing.T) {
		s := &SyncState{MailboxConnected: true}
		assert.True(t, s.Due(now, interval))
	})

	t.Run("recently synced is not due", func(t *testing.T) {
		s := &SyncState{MailboxConnected: true, LastSyncedAt: syncedAt(interval - time.Second)}
		assert.False(t, s.Due(now, interval))
	})

	t.Run("due exactly at the interval", func(t *testing.T) {
		s := &SyncState{MailboxConnected: true, LastSyncedAt: syncedAt(interval)}
		assert.True(t, s.Due(now, interval))
	})
}
