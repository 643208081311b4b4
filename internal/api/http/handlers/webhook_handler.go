package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chatflow-service/internal/api/dto"
	"github.com/spec-kit/chatflow-service/internal/service"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// WebhookHandler receives channel adapter callbacks: inbound messages and
// delivery status updates.
type WebhookHandler struct {
	inbound *service.InboundService
}

// NewWebhookHandler returns a new handler instance.
func NewWebhookHandler(inbound *service.InboundService) *WebhookHandler {
	return &WebhookHandler{inbound: inbound}
}

// ReceiveMessage handles POST /webhooks/:tenantId/inbound/:channelInstanceId.
// A LockTimeout maps to 503 so the adapter redelivers instead of dropping
// the message.
func (h *WebhookHandler) ReceiveMessage(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	channelInstanceID := c.Params("channelInstanceId")
	if tenantID == "" || channelInstanceID == "" {
		return apperrors.NewValidationError("tenant and channel instance required", nil)
	}

	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("malformed payload", map[string]any{"parse": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ticket, err := h.inbound.Handle(c.UserContext(), req.ToInbound(tenantID, channelInstanceID))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(dto.TicketResponse{
		TicketID:       ticket.ID,
		Status:         string(ticket.Status),
		ChatFlowStatus: string(ticket.ChatFlowStatus),
	})
}
