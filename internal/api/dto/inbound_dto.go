package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/chatflow-service/internal/service"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// InboundMessageRequest is the payload channel adapters deliver for each
// received or acknowledged message.
type InboundMessageRequest struct {
	Contact     ContactRequest `json:"contact"`
	ExternalID  string         `json:"external_id,omitempty"`
	Body        string         `json:"body"`
	SelectionID string         `json:"selection_id,omitempty"`
	MediaType   string         `json:"media_type,omitempty"`
	MediaURL    string         `json:"media_url,omitempty"`
	QuotedMsgID string         `json:"quoted_msg_id,omitempty"`
	FromMe      bool           `json:"from_me"`
	Ack         int            `json:"ack"`
	Status      string         `json:"status,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ContactRequest is the raw channel identity of the sender.
type ContactRequest struct {
	ExternalID string `json:"external_id"`
	Number     string `json:"number"`
	Name       string `json:"name,omitempty"`
	IsGroup    bool   `json:"is_group,omitempty"`
}

// Validate checks required fields.
func (r *InboundMessageRequest) Validate() error {
	details := map[string]any{}
	if strings.TrimSpace(r.Contact.Number) == "" && strings.TrimSpace(r.Contact.ExternalID) == "" {
		details["contact"] = "number or external_id required"
	}
	if strings.TrimSpace(r.Body) == "" && r.MediaURL == "" && r.ExternalID == "" {
		details["body"] = "body, media_url or external_id required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid inbound message", details)
	}
	return nil
}

// ToInbound maps the request to the service input.
func (r *InboundMessageRequest) ToInbound(tenantID, channelInstanceID string) service.InboundMessage {
	return service.InboundMessage{
		TenantID:          tenantID,
		ChannelInstanceID: channelInstanceID,
		Contact: service.ContactInput{
			ExternalID: r.Contact.ExternalID,
			Number:     r.Contact.Number,
			Name:       r.Contact.Name,
			IsGroup:    r.Contact.IsGroup,
		},
		ExternalID:  r.ExternalID,
		Body:        r.Body,
		SelectionID: r.SelectionID,
		MediaType:   r.MediaType,
		MediaURL:    r.MediaURL,
		QuotedMsgID: r.QuotedMsgID,
		FromMe:      r.FromMe,
		Ack:         r.Ack,
		Status:      r.Status,
		Timestamp:   r.Timestamp,
	}
}

// TicketResponse is the acknowledgment returned to channel adapters.
type TicketResponse struct {
	TicketID       string `json:"ticket_id"`
	Status         string `json:"status"`
	ChatFlowStatus string `json:"chat_flow_status"`
}
