package events

import (
	"time"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketUpdated  EventType = "ticket-updated"
	EventMessageCreated EventType = "message-created"
	EventMessageUpdated EventType = "message-updated"
)

// Event is a tenant-scoped change notification. Transport beyond the
// in-process dispatcher is an external collaborator.
type Event struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketUpdatedPayload carries the ticket after a state transition or
// summary update.
type TicketUpdatedPayload struct {
	Ticket *domain.Ticket `json:"ticket"`
}

// MessagePayload carries a stored message. Body is plaintext (decrypted
// for delivery) and MediaURL is rewritten to an absolute form.
type MessagePayload struct {
	Message  *domain.Message `json:"message"`
	Body     string          `json:"body"`
	MediaURL string          `json:"media_url,omitempty"`
	TicketID string          `json:"ticket_id"`
}
