package domain

import "time"

// Queue is a human work queue tickets are handed to after the bot.
type Queue struct {
	ID             string
	TenantID       string
	Name           string
	IsActive       bool
	WelcomeMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
