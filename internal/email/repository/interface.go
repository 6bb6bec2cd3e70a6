package repository

import (
	emaildomain "mailpilot-backend/internal/email/domain"
)

// EmailCacheRepository stores normalized copies of provider messages.
type EmailCacheRepository interface {
	// Exists reports whether a message has already been recorded for a user.
	Exists(userID, emailID string) (bool, error)
	// UpsertMessage inserts or merge-updates the message fields of a cached
	// email. Analysis columns are never touched by this path.
	UpsertMessage(email *emaildomain.Email) error
	// SaveAnalysis merge-updates only the analysis columns.
	SaveAnalysis(userID, emailID, intent, urgency, category string, requiresResponse bool) error
	Get(userID, emailID string) (*emaildomain.Email, error)
}

// DraftRepository stores generated reply drafts.
type DraftRepository interface {
	Save(draft *emaildomain.Draft) error
	ListByUser(userID string, limit int) ([]*emaildomain.Draft, error)
}
