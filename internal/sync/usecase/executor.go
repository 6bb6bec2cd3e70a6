package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	authrepo "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	emailrepo "mailpilot-backend/internal/email/repository"
	syncdomain "mailpilot-backend/internal/sync/domain"
	syncrepo "mailpilot-backend/internal/sync/repository"
	"mailpilot-backend/pkg/sse"
)

// EventPublisher pushes events to a user's live connections.
type EventPublisher interface {
	SendToUser(userID string, eventType string, data interface{})
}

// JobEnqueuer hands work off to the processing pipeline.
type JobEnqueuer interface {
	EnqueueEmailProcessing(ctx context.Context, userID, emailID string) error
	EnqueueLearning(ctx context.Context, userID string) error
}

// Executor runs mailbox syncs: one user at a time on the immediate path, a
// goroutine per user on the batch path. User outcomes are isolated; a panic
// or error for one user never touches its siblings.
type Executor struct {
	users   authrepo.UserRepository
	states  syncrepo.SyncStateRepository
	metrics syncrepo.SyncMetricsRepository
	emails  emailrepo.EmailCacheRepository
	mail    emaildomain.MailProvider
	jobs    JobEnqueuer
	bus     EventPublisher

	pageSize int
	now      func() time.Time
}

func NewExecutor(
	users authrepo.UserRepository,
	states syncrepo.SyncStateRepository,
	metrics syncrepo.SyncMetricsRepository,
	emails emailrepo.EmailCacheRepository,
	mail emaildomain.MailProvider,
	jobs JobEnqueuer,
	bus EventPublisher,
	pageSize int,
) *Executor {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Executor{
		users:    users,
		states:   states,
		metrics:  metrics,
		emails:   emails,
		mail:     mail,
		jobs:     jobs,
		bus:      bus,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// RunBatch syncs every user in the batch concurrently and waits for all of
// them to settle. It records one append-only metrics row; success plus error
// always equals the batch size.
func (e *Executor) RunBatch(ctx context.Context, batch *Batch) *syncdomain.SyncMetrics {
	start := e.now()
	var wg sync.WaitGroup
	var success, failed int64

	for _, state := range batch.Users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&failed, 1)
					log.Printf("[Sync] Panic while syncing user %s: %v", userID, r)
					if err := e.states.MarkSyncError(userID, fmt.Sprintf("internal error: %v", r)); err != nil {
						log.Printf("[Sync] Failed to record panic for user %s: %v", userID, err)
					}
				}
			}()
			if err := e.SyncUser(ctx, userID); err != nil {
				atomic.AddInt64(&failed, 1)
			} else {
				atomic.AddInt64(&success, 1)
			}
		}(state.UserID)
	}
	wg.Wait()

	m := &syncdomain.SyncMetrics{
		ID:           uuid.New().String(),
		Tier:         string(batch.Tier),
		UserCount:    len(batch.Users),
		DurationMs:   time.Since(start).Milliseconds(),
		SuccessCount: int(atomic.LoadInt64(&success)),
		ErrorCount:   int(atomic.LoadInt64(&failed)),
		Timestamp:    start,
	}
	if err := e.metrics.Record(m); err != nil {
		log.Printf("[Sync] Failed to record metrics for %s batch: %v", batch.Tier, err)
	}
	log.Printf("[Sync] Batch %s: %d users, %d ok, %d failed in %dms",
		batch.Tier, m.UserCount, m.SuccessCount, m.ErrorCount, m.DurationMs)
	return m
}

// SyncUser fetches the user's recent inbox page, cache-upserts every message
// and enqueues processing for the ones not seen before. Also the immediate
// path used by the manual trigger and the push listener.
func (e *Executor) SyncUser(ctx context.Context, userID string) error {
	user, err := e.users.FindByID(userID)
	if err != nil {
		return e.fail(userID, fmt.Errorf("failed to load user: %w", err))
	}
	if user == nil {
		return e.fail(userID, fmt.Errorf("user %s not found", userID))
	}

	messages, err := e.mail.FetchRecent(ctx, user.GoogleAccessToken, user.GoogleRefreshToken, e.pageSize, e.tokenPersister(userID))
	if err != nil {
		if errors.Is(err, syncdomain.ErrAuthExpired) {
			// Terminal until the user reconnects: drop them from the
			// candidate pool instead of failing every cycle.
			log.Printf("[Sync] Auth expired for user %s, disconnecting mailbox", userID)
			if derr := e.states.SetConnected(userID, false); derr != nil {
				log.Printf("[Sync] Failed to disconnect user %s: %v", userID, derr)
			}
			return e.fail(userID, fmt.Errorf("google authorization expired, reconnect required"))
		}
		return e.fail(userID, fmt.Errorf("failed to fetch mailbox: %w", err))
	}

	newCount := 0
	for _, msg := range messages {
		msg.UserID = userID
		seen, err := e.emails.Exists(userID, msg.ID)
		if err != nil {
			return e.fail(userID, fmt.Errorf("failed to check email %s: %w", msg.ID, err))
		}
		if err := e.emails.UpsertMessage(msg); err != nil {
			return e.fail(userID, fmt.Errorf("failed to cache email %s: %w", msg.ID, err))
		}
		if seen {
			continue
		}
		newCount++
		e.bus.SendToUser(userID, sse.EventEmailReceived, map[string]interface{}{
			"email_id":    msg.ID,
			"from":        msg.From,
			"from_name":   msg.FromName,
			"subject":     msg.Subject,
			"snippet":     msg.Snippet,
			"received_at": msg.ReceivedAt,
		})
		if err := e.jobs.EnqueueEmailProcessing(ctx, userID, msg.ID); err != nil {
			return e.fail(userID, fmt.Errorf("failed to enqueue processing for email %s: %w", msg.ID, err))
		}
	}

	if err := e.states.MarkSyncSuccess(userID, e.now()); err != nil {
		return e.fail(userID, fmt.Errorf("failed to record sync success: %w", err))
	}
	if newCount > 0 {
		log.Printf("[Sync] User %s: %d new of %d fetched", userID, newCount, len(messages))
	}
	return nil
}

// fail records the error on the sync state, leaving last_synced_at untouched
// so recurrence retries the user, and returns the error for batch counting.
func (e *Executor) fail(userID string, err error) error {
	if merr := e.states.MarkSyncError(userID, err.Error()); merr != nil {
		log.Printf("[Sync] Failed to record sync error for user %s: %v", userID, merr)
	}
	return err
}

func (e *Executor) tokenPersister(userID string) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		return e.users.UpdateGoogleTokens(userID, token.AccessToken, token.RefreshToken)
	}
}
