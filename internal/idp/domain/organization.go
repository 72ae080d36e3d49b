package domain

import "time"

// Organization is the tenant boundary. Every client, user, and the records
// hanging off them belong to exactly one organization.
type Organization struct {
	ID        string
	Name      string // unique tenant name
	CreatedAt time.Time
	UpdatedAt time.Time
}
