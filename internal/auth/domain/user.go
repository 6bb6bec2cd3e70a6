package domain

import "time"

type User struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Email    string `json:"email" gorm:"uniqueIndex"`
	Name     string `json:"name"`
	Provider string `json:"provider"` // "google"

	// Google OAuth tokens for the connected mailbox. Refreshed transparently
	// by the Gmail client; persisted back whenever they rotate.
	GoogleAccessToken  string `json:"-"`
	GoogleRefreshToken string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
