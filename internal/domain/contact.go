package domain

import "time"

// Contact is a resolved conversation counterpart. Identity resolution and
// caching live outside this service; the core only consumes the result.
type Contact struct {
	ID        string
	TenantID  string
	Name      string
	Number    string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
