package domain

import "time"

// ChannelInstance is one configured connection to a messaging channel,
// e.g. one chat-widget endpoint or one messaging-app account. It may bind
// a chat flow that drives new tickets through the bot.
type ChannelInstance struct {
	ID       string
	TenantID string
	Channel  string
	Name     string
	Status   string
	// ChatFlowID, when set, enters new tickets into the bot state machine.
	ChatFlowID *string
	// FlowTestNumber restricts the bot to a single contact number while a
	// flow is being validated. Empty means no restriction.
	FlowTestNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FlowAppliesTo reports whether the bound flow should drive a ticket for
// the given contact number.
func (ci *ChannelInstance) FlowAppliesTo(number string) bool {
	if ci.ChatFlowID == nil {
		return false
	}
	if ci.FlowTestNumber != "" && ci.FlowTestNumber != number {
		return false
	}
	return true
}
