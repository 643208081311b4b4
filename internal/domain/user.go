package domain

import "time"

// User is a human agent tickets can be assigned to. Authentication and
// administration of users live outside this service.
type User struct {
	ID             string
	TenantID       string
	Name           string
	Email          string
	IsActive       bool
	WelcomeMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
