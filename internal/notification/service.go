package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	authrepo "mailpilot-backend/internal/auth/repository"
	syncusecase "mailpilot-backend/internal/sync/usecase"
	"mailpilot-backend/pkg/fcm"
)

// GmailNotification is the payload Gmail publishes on the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service listens for Gmail push notifications and turns them into immediate
// single-user syncs. Push delivery only accelerates the cron cycle; losing a
// message costs latency, never data.
type Service struct {
	pubsubClient *pubsub.Client
	users        authrepo.UserRepository
	fcmRepo      authrepo.FCMTokenRepository
	fcmClient    *fcm.Client
	tracker      *syncusecase.ActivityTracker
	executor     *syncusecase.Executor
	topicName    string
	subName      string

	// Dedupe: Gmail redelivers aggressively, so track the last historyId
	// seen per user.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(
	projectID, topicName, credentialsFile string,
	users authrepo.UserRepository,
	fcmRepo authrepo.FCMTokenRepository,
	fcmClient *fcm.Client,
	tracker *syncusecase.ActivityTracker,
	executor *syncusecase.Executor,
) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(context.Background(), projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &Service{
		pubsubClient:  client,
		users:         users,
		fcmRepo:       fcmRepo,
		fcmClient:     fcmClient,
		tracker:       tracker,
		executor:      executor,
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving push notifications until ctx is cancelled. The
// subscription is created on first run if the topic already exists.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting Gmail push listener, topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}
	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, push listener disabled", s.topicName)
			return
		}
		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Receive stopped: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Discarding malformed notification: %v", err)
		return
	}

	user, err := s.users.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding user for %s: %v", notification.EmailAddress, err)
		return
	}
	if user == nil {
		log.Printf("[PubSub] No user for address %s", notification.EmailAddress)
		return
	}

	s.mu.Lock()
	last, seen := s.lastHistoryID[user.ID]
	if seen && notification.HistoryID <= last {
		s.mu.Unlock()
		return
	}
	s.lastHistoryID[user.ID] = notification.HistoryID
	s.mu.Unlock()

	log.Printf("[PubSub] Mailbox change for user %s (historyId %d)", user.ID, notification.HistoryID)

	// Receiving mail is an activity signal and a reason to sync right away
	// rather than wait for the next cycle.
	if err := s.tracker.RecordActivity(user.ID); err != nil {
		log.Printf("[PubSub] Failed to record activity for user %s: %v", user.ID, err)
	}
	if err := s.executor.SyncUser(ctx, user.ID); err != nil {
		log.Printf("[PubSub] Immediate sync failed for user %s: %v", user.ID, err)
		return
	}

	if s.fcmClient != nil && s.fcmRepo != nil {
		go s.pushNewMail(user.ID)
	}
}

// pushNewMail notifies the user's registered devices. Tokens Firebase
// rejects are deleted so the table does not accumulate dead entries.
func (s *Service) pushNewMail(userID string) {
	tokens, err := s.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[FCM] Error loading tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failed, err := s.fcmClient.SendToDevices(context.Background(), tokenStrings, fcm.NotificationData{
		Title: "New email",
		Body:  "You have new mail in your inbox",
		Data: map[string]string{
			"type": "email_received",
		},
	})
	if err != nil {
		log.Printf("[FCM] Error sending notifications for user %s: %v", userID, err)
		return
	}
	for _, token := range failed {
		if err := s.fcmRepo.DeleteToken(token); err != nil {
			log.Printf("[FCM] Failed to delete dead token: %v", err)
		}
	}
}
