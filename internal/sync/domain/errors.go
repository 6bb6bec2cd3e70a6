package domain

import "errors"

// Error taxonomy for sync and pipeline failures. Per-user and per-job errors
// are caught at their boundary and turned into status fields or retries; they
// never abort a sibling's processing or the scheduler cycle.
var (
	// ErrAuthExpired means the Google credentials could not be refreshed.
	// Terminal for the current sync attempt; the user has to reconnect.
	ErrAuthExpired = errors.New("auth expired: mailbox credentials need reconnection")

	// ErrRateLimited is a transient provider error, retried by recurrence
	// (next sync cycle) or by job backoff.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrMailboxNotConnected means sync was requested for a user whose
	// mailbox is disconnected or has no stored tokens.
	ErrMailboxNotConnected = errors.New("mailbox not connected")
)
