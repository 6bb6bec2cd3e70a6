package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"

	authrepo "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	syncdomain "mailpilot-backend/internal/sync/domain"
	syncrepo "mailpilot-backend/internal/sync/repository"
)

// Connector manages the mailbox connection lifecycle. Disconnect is a soft
// disable; the sync-state row is never deleted.
type Connector struct {
	users      authrepo.UserRepository
	states     syncrepo.SyncStateRepository
	mail       emaildomain.MailProvider
	jobs       JobEnqueuer
	watchTopic string
	now        func() time.Time
}

func NewConnector(
	users authrepo.UserRepository,
	states syncrepo.SyncStateRepository,
	mail emaildomain.MailProvider,
	jobs JobEnqueuer,
	watchTopic string,
) *Connector {
	return &Connector{
		users:      users,
		states:     states,
		mail:       mail,
		jobs:       jobs,
		watchTopic: watchTopic,
		now:        time.Now,
	}
}

// Connect stores the Google tokens, enables sync for the user and kicks off
// style learning. The Gmail watch registration is best effort: push delivery
// is an accelerator, the cron cycle remains the source of truth.
func (c *Connector) Connect(ctx context.Context, userID, accessToken, refreshToken string) error {
	user, err := c.users.FindByID(userID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}

	if err := c.users.UpdateGoogleTokens(userID, accessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	now := c.now()
	existing, err := c.states.Get(userID)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	if existing != nil {
		if err := c.states.SetConnected(userID, true); err != nil {
			return fmt.Errorf("failed to reconnect mailbox: %w", err)
		}
		if err := c.states.UpdateActivity(userID, now, syncdomain.ActivityVeryActive); err != nil {
			return fmt.Errorf("failed to refresh activity: %w", err)
		}
	} else {
		state := &syncdomain.SyncState{
			UserID:           userID,
			LastActiveAt:     now,
			SyncStatus:       syncdomain.SyncStatusPending,
			ActivityLevel:    string(syncdomain.ActivityVeryActive),
			MailboxConnected: true,
		}
		if err := c.states.Save(state); err != nil {
			return fmt.Errorf("failed to create sync state: %w", err)
		}
	}

	if c.watchTopic != "" {
		if err := c.mail.Watch(ctx, accessToken, refreshToken, c.watchTopic, c.tokenPersister(userID)); err != nil {
			log.Printf("[Sync] Gmail watch registration failed for user %s: %v", userID, err)
		}
	}

	if err := c.jobs.EnqueueLearning(ctx, userID); err != nil {
		log.Printf("[Sync] Failed to enqueue learning for user %s: %v", userID, err)
	}
	log.Printf("[Sync] Mailbox connected for user %s", userID)
	return nil
}

func (c *Connector) Disconnect(userID string) error {
	if err := c.states.SetConnected(userID, false); err != nil {
		return fmt.Errorf("failed to disconnect mailbox: %w", err)
	}
	log.Printf("[Sync] Mailbox disconnected for user %s", userID)
	return nil
}

func (c *Connector) tokenPersister(userID string) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		return c.users.UpdateGoogleTokens(userID, token.AccessToken, token.RefreshToken)
	}
}
