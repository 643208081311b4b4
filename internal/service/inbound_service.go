package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/repository"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
	"github.com/spec-kit/chatflow-service/pkg/util/keymutex"
)

// InboundService is the pipeline entry for channel events: it resolves
// the ticket, records the message and drives the flow engine. Domain
// failures are contained here; infrastructure failures bubble to the
// caller, which owns retry policy.
type InboundService struct {
	channelInstances repository.ChannelInstanceRepository
	contacts         ContactResolver
	gate             *TicketGate
	store            *MessageStore
	engine           *FlowEngine
	logger           *zap.Logger

	// ticketLocks serializes flow transitions per ticket so near
	// simultaneous inbound events cannot race on step/retry state.
	ticketLocks *keymutex.KeyMutex
}

// InboundDependencies bundles collaborators.
type InboundDependencies struct {
	ChannelInstanceRepo repository.ChannelInstanceRepository
	Contacts            ContactResolver
	Gate                *TicketGate
	Store               *MessageStore
	Engine              *FlowEngine
	Logger              *zap.Logger
}

// NewInboundService creates the service.
func NewInboundService(deps InboundDependencies) *InboundService {
	return &InboundService{
		channelInstances: deps.ChannelInstanceRepo,
		contacts:         deps.Contacts,
		gate:             deps.Gate,
		store:            deps.Store,
		engine:           deps.Engine,
		logger:           deps.Logger,
		ticketLocks:      keymutex.New(),
	}
}

// InboundMessage is one channel event as delivered by an adapter.
type InboundMessage struct {
	TenantID          string
	ChannelInstanceID string
	Contact           ContactInput
	ExternalID        string
	Body              string
	SelectionID       string
	MediaType         string
	MediaURL          string
	QuotedMsgID       string
	FromMe            bool
	Ack               int
	Status            string
	Timestamp         time.Time
}

// Handle processes one inbound event end to end.
func (s *InboundService) Handle(ctx context.Context, in InboundMessage) (*domain.Ticket, error) {
	ci, err := s.channelInstances.GetByID(ctx, in.ChannelInstanceID)
	if err != nil {
		return nil, err
	}
	if in.TenantID != "" && in.TenantID != ci.TenantID {
		return nil, apperrors.NewValidationError("channel instance does not belong to tenant", map[string]any{
			"channel_instance_id": ci.ID,
		})
	}

	contact, err := s.contacts.Resolve(ctx, ci.TenantID, in.Contact)
	if err != nil {
		return nil, err
	}

	ticket, isNew, err := s.gate.AcquireOrCreate(ctx, ci, contact)
	if err != nil {
		return nil, err
	}

	s.ticketLocks.Lock(ticket.ID)
	defer s.ticketLocks.Unlock(ticket.ID)

	if _, err := s.store.Record(ctx, s.recordInput(ci, contact, ticket, in)); err != nil {
		if apperrors.IsTicketNotFound(err) {
			s.logger.Error("inbound message for vanished ticket",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			return nil, err
		}
		return nil, err
	}

	// Reload so the flow step sees the summary fields just written.
	ticket, err = s.gate.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	if err := s.driveFlow(ctx, ticket, ci, contact, in, isNew); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *InboundService) driveFlow(ctx context.Context, ticket *domain.Ticket, ci *domain.ChannelInstance, contact *domain.Contact, in InboundMessage, isNew bool) error {
	if in.FromMe {
		return nil
	}

	var err error
	switch {
	case isNew:
		err = s.engine.Start(ctx, ticket, ci, contact)
	case ticket.InFlow():
		err = s.engine.HandleInbound(ctx, ticket, contact, InboundReply{
			Text:        in.Body,
			SelectionID: in.SelectionID,
		})
	default:
		return nil
	}
	if err == nil {
		return nil
	}

	// Missing flows or steps are recoverable: the message is already
	// stored, the ticket stays as-is and a human picks it up.
	if apperrors.IsFlowNotFound(err) || apperrors.IsInvalidFlowStep(err) {
		s.logger.Warn("flow step aborted",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	return err
}

func (s *InboundService) recordInput(ci *domain.ChannelInstance, contact *domain.Contact, ticket *domain.Ticket, in InboundMessage) RecordInput {
	input := RecordInput{
		TenantID:  ci.TenantID,
		TicketID:  ticket.ID,
		Body:      in.Body,
		Ack:       in.Ack,
		Status:    in.Status,
		FromMe:    in.FromMe,
		SendType:  domain.SendTypeChat,
		Timestamp: in.Timestamp,
	}
	if !in.FromMe {
		contactID := contact.ID
		input.ContactID = &contactID
	}
	if in.ExternalID != "" {
		externalID := in.ExternalID
		input.ExternalID = &externalID
	}
	if in.MediaType != "" {
		mediaType := in.MediaType
		input.MediaType = &mediaType
	}
	if in.MediaURL != "" {
		mediaURL := in.MediaURL
		input.MediaURL = &mediaURL
	}
	if in.QuotedMsgID != "" {
		quoted := in.QuotedMsgID
		input.QuotedMsgID = &quoted
	}
	return input
}
