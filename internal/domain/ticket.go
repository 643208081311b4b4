package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClosed  TicketStatus = "closed"
)

// FlowStatus enumerates bot conversation states for a ticket.
type FlowStatus string

const (
	FlowStatusNotStarted    FlowStatus = "not_started"
	FlowStatusWaitingAnswer FlowStatus = "waiting_answer"
	FlowStatusInProgress    FlowStatus = "in_progress"
)

// Ticket is one ongoing conversation with one contact on one channel
// instance within one tenant. At most one ticket with status pending or
// open exists per (tenant, channel instance, contact).
type Ticket struct {
	ID                   string
	TenantID             string
	ContactID            string
	ChannelInstanceID    string
	Channel              string
	Status               TicketStatus
	IsGroup              bool
	QueueID              *string
	UserID               *string
	UnreadMessages       int
	Answered             bool
	LastMessage          string
	LastMessageAt        *time.Time
	ClosedAt             *time.Time
	LastAbsenceMessageAt *time.Time
	ChatFlowID           *string
	StepChatFlow         *string
	ChatFlowStatus       FlowStatus
	BotRetries           int
	LastInteractionBot   *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsResolvable reports whether the ticket still accepts conversation;
// closed tickets are excluded from gating and flow evaluation.
func (t *Ticket) IsResolvable() bool {
	return t.Status == TicketStatusPending || t.Status == TicketStatusOpen
}

// InFlow reports whether the bot state machine currently owns the ticket.
func (t *Ticket) InFlow() bool {
	if t.ChatFlowID == nil || t.UserID != nil {
		return false
	}
	return t.ChatFlowStatus == FlowStatusWaitingAnswer || t.ChatFlowStatus == FlowStatusInProgress
}

// DetachFlow removes the bot binding, used on handoff to a queue or agent.
// Handoff also clears the bot retry counter and the absence-notice stamp.
func (t *Ticket) DetachFlow() {
	t.ChatFlowID = nil
	t.StepChatFlow = nil
	t.ChatFlowStatus = FlowStatusNotStarted
	t.BotRetries = 0
	t.LastAbsenceMessageAt = nil
}
