package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is invoked when the provider transparently refreshes the
// OAuth token, so the new token can be persisted.
type TokenUpdateFunc func(token *oauth2.Token) error

// Email is a normalized provider message cached per user. The analysis
// columns are filled in by the processing pipeline with merge semantics:
// pipeline writes never overwrite the message fields below them, and cache
// upserts from sync never overwrite analysis results already present.
type Email struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"primaryKey"`
	ThreadID   string    `json:"thread_id"`
	From       string    `json:"from"`
	FromName   string    `json:"from_name,omitempty"`
	To         string    `json:"to,omitempty"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	Body       string    `json:"body,omitempty"`
	IsUnread   bool      `json:"is_unread"`
	ReceivedAt time.Time `json:"received_at"`

	// Analysis projection, written by the EmailProcessing stage.
	Intent           string `json:"intent,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	Category         string `json:"category,omitempty"`
	RequiresResponse bool   `json:"requires_response"`
	Analyzed         bool   `json:"analyzed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is a generated reply persisted alongside the provider-side draft.
type Draft struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	UserID          string    `json:"user_id" gorm:"index"`
	EmailID         string    `json:"email_id"`
	ThreadID        string    `json:"thread_id"`
	ProviderDraftID string    `json:"provider_draft_id"`
	Body            string    `json:"body"`
	Confidence      float64   `json:"confidence"`
	TimeSavedMin    int       `json:"time_saved_min"`
	CreatedAt       time.Time `json:"created_at"`
}
