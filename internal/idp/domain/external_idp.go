package domain

import "time"

// ExternalIdpMapping links a local B2C subject to an upstream provider's
// subject. Unique per (user, provider).
type ExternalIdpMapping struct {
	ID              string
	UserID          string
	Provider        string
	ExternalSubject string
	CreatedAt       time.Time
}

// ExternalIdpToken caches the upstream provider's tokens for a mapped user.
// The core only persists and presents these; refresh happens at the
// federation boundary when ExpiresAt has passed.
type ExternalIdpToken struct {
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}
