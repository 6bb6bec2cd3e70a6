package domain

import "context"

// MailProvider is the mailbox client boundary. Implemented by pkg/gmail;
// tests substitute a fake. Tokens are passed explicitly and onTokenRefresh
// fires whenever the provider rotates them.
type MailProvider interface {
	// FetchRecent returns up to pageSize unread-or-recent inbox messages,
	// newest first.
	FetchRecent(ctx context.Context, accessToken, refreshToken string, pageSize int, onTokenRefresh TokenUpdateFunc) ([]*Email, error)

	// FetchSent returns up to limit of the user's sent messages, used by the
	// learning stage to sample writing style.
	FetchSent(ctx context.Context, accessToken, refreshToken string, limit int, onTokenRefresh TokenUpdateFunc) ([]*Email, error)

	// CreateReplyDraft creates a provider-side reply draft on the email's
	// thread and returns the provider draft ID.
	CreateReplyDraft(ctx context.Context, accessToken, refreshToken string, email *Email, body string, onTokenRefresh TokenUpdateFunc) (string, error)

	// Watch registers push notifications for the mailbox on a Pub/Sub topic.
	Watch(ctx context.Context, accessToken, refreshToken string, topic string, onTokenRefresh TokenUpdateFunc) error
}
