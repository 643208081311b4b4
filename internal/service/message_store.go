package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/crypto"
	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/events"
	"github.com/spec-kit/chatflow-service/internal/repository"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// lastMessageLimit caps the ticket preview column.
const lastMessageLimit = 255

// emptyBodyPlaceholder replaces bodies that arrive empty, typically
// media-only events.
const emptyBodyPlaceholder = "[sem conteúdo]"

// MessageStore is the canonical, idempotent message sink. It normalizes
// payloads, encrypts bodies, deduplicates by external id and keeps the
// owning ticket's summary fields consistent within the same logical write.
type MessageStore struct {
	messages repository.MessageRepository
	tickets  repository.TicketRepository

	cipher     *crypto.BodyCipher
	media      MediaPipeline
	adapter    ChannelAdapter
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mediaBaseURL string
}

// MessageStoreDependencies bundles collaborators.
type MessageStoreDependencies struct {
	MessageRepo repository.MessageRepository
	TicketRepo  repository.TicketRepository
	Cipher      *crypto.BodyCipher
	Media       MediaPipeline
	Adapter     ChannelAdapter
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewMessageStore creates the store.
func NewMessageStore(cfg config.AppConfig, deps MessageStoreDependencies) *MessageStore {
	return &MessageStore{
		messages:     deps.MessageRepo,
		tickets:      deps.TicketRepo,
		cipher:       deps.Cipher,
		media:        deps.Media,
		adapter:      deps.Adapter,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		mediaBaseURL: strings.TrimRight(cfg.MediaBaseURL, "/"),
	}
}

// RecordInput is a canonical message prior to storage. Body is plaintext.
type RecordInput struct {
	TenantID    string
	TicketID    string
	ContactID   *string
	ExternalID  *string
	Body        string
	MediaType   *string
	MediaURL    *string
	Ack         int
	Status      string
	FromMe      bool
	Read        bool
	SendType    domain.SendType
	QuotedMsgID *string
	Timestamp   time.Time
}

// Record persists a message idempotently. Re-delivery of a channel event
// with a known external id updates the existing row's mutable fields
// instead of inserting a duplicate.
func (s *MessageStore) Record(ctx context.Context, input RecordInput) (*domain.Message, error) {
	ticket, err := s.loadTicket(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}

	if input.ExternalID != nil && *input.ExternalID != "" {
		existing, err := s.messages.GetByExternalID(ctx, input.TenantID, *input.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.updateExisting(ctx, existing, input)
		}
	}

	return s.insert(ctx, ticket, input)
}

// SendBot delivers a bot-authored text on the ticket's channel and records
// it. Delivery failure is logged and the message is still stored; the ack
// callback will reconcile later.
func (s *MessageStore) SendBot(ctx context.Context, ticket *domain.Ticket, body string) (*domain.Message, error) {
	return s.sendBot(ctx, ticket, body, "")
}

// SendBotMedia behaves like SendBot and attaches a media reference that
// runs through the media pipeline.
func (s *MessageStore) SendBotMedia(ctx context.Context, ticket *domain.Ticket, body, mediaURL string) (*domain.Message, error) {
	return s.sendBot(ctx, ticket, body, mediaURL)
}

func (s *MessageStore) sendBot(ctx context.Context, ticket *domain.Ticket, body, mediaURL string) (*domain.Message, error) {
	input := RecordInput{
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Body:      body,
		Status:    "pending",
		FromMe:    true,
		SendType:  domain.SendTypeBot,
		Timestamp: time.Now(),
	}
	if mediaURL != "" {
		input.MediaURL = &mediaURL
	}
	if s.adapter != nil {
		externalID, err := s.adapter.SendText(ctx, ticket, body)
		if err != nil {
			s.logger.Warn("channel delivery failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else if externalID != "" {
			input.ExternalID = &externalID
			input.Ack = domain.AckSent
			input.Status = "sent"
		}
	}
	return s.Record(ctx, input)
}

func (s *MessageStore) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}
	return ticket, nil
}

func (s *MessageStore) insert(ctx context.Context, ticket *domain.Ticket, input RecordInput) (*domain.Message, error) {
	plain := input.Body
	if strings.TrimSpace(plain) == "" {
		plain = emptyBodyPlaceholder
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, err
	}

	mediaType, mediaKey := s.ingestMedia(ctx, input)

	msg := &domain.Message{
		ExternalID:  normalizeExternalID(input.ExternalID),
		TicketID:    ticket.ID,
		ContactID:   input.ContactID,
		Body:        sealed,
		MediaType:   mediaType,
		MediaURL:    mediaKey,
		Ack:         input.Ack,
		Status:      defaultStatus(input.Status),
		FromMe:      input.FromMe,
		Read:        input.Read || input.FromMe,
		SendType:    defaultSendType(input.SendType),
		QuotedMsgID: input.QuotedMsgID,
		Timestamp:   defaultTimestamp(input.Timestamp),
		TenantID:    input.TenantID,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.updateTicketSummary(ctx, ticket, msg, plain); err != nil {
		return nil, err
	}

	s.publishMessage(ctx, events.EventMessageCreated, msg, plain)
	s.publishTicket(ctx, ticket)
	return msg, nil
}

// updateExisting applies the mutable fields of a re-delivered event, e.g.
// a send-completion callback following an earlier optimistic insert.
func (s *MessageStore) updateExisting(ctx context.Context, existing *domain.Message, input RecordInput) (*domain.Message, error) {
	existing.Ack = input.Ack
	if input.Status != "" {
		existing.Status = input.Status
	}
	if input.Read {
		existing.Read = true
	}
	plain := s.cipher.Decrypt(existing.Body)
	if strings.TrimSpace(input.Body) != "" && input.Body != plain {
		plain = input.Body
		sealed, err := s.cipher.Encrypt(plain)
		if err != nil {
			return nil, err
		}
		existing.Body = sealed
	}
	if err := s.messages.Update(ctx, existing); err != nil {
		return nil, err
	}

	s.publishMessage(ctx, events.EventMessageUpdated, existing, plain)
	return existing, nil
}

// ingestMedia runs the media pipeline. Failure is non-fatal: the message
// persists without media.
func (s *MessageStore) ingestMedia(ctx context.Context, input RecordInput) (*string, *string) {
	if input.MediaURL == nil || *input.MediaURL == "" {
		return input.MediaType, nil
	}
	if s.media == nil {
		return input.MediaType, input.MediaURL
	}
	mediaType := ""
	if input.MediaType != nil {
		mediaType = *input.MediaType
	}
	key, err := s.media.Ingest(ctx, input.TenantID, *input.MediaURL, mediaType)
	if err != nil {
		s.logger.Warn("media ingest failed; storing message without media",
			zap.String("ticket_id", input.TicketID),
			zap.Error(apperrors.NewMediaProcessing(err)))
		return nil, nil
	}
	return input.MediaType, &key
}

func (s *MessageStore) updateTicketSummary(ctx context.Context, ticket *domain.Ticket, msg *domain.Message, plain string) error {
	ticket.LastMessage = truncatePreview(plain)
	ts := msg.Timestamp
	ticket.LastMessageAt = &ts
	ticket.Answered = msg.FromMe
	if msg.FromMe {
		ticket.UnreadMessages = 0
	} else {
		ticket.UnreadMessages++
	}
	return s.tickets.Update(ctx, ticket)
}

func (s *MessageStore) publishMessage(ctx context.Context, eventType events.EventType, msg *domain.Message, plain string) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		TenantID:  msg.TenantID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload: events.MessagePayload{
			Message:  msg,
			Body:     plain,
			MediaURL: s.absoluteMediaURL(msg.MediaURL),
			TicketID: msg.TicketID,
		},
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *MessageStore) publishTicket(ctx context.Context, ticket *domain.Ticket) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		TenantID:  ticket.TenantID,
		Type:      events.EventTicketUpdated,
		Timestamp: time.Now(),
		Payload:   events.TicketUpdatedPayload{Ticket: ticket},
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// absoluteMediaURL rewrites a stored media key to an externally
// resolvable form.
func (s *MessageStore) absoluteMediaURL(key *string) string {
	if key == nil || *key == "" {
		return ""
	}
	if strings.HasPrefix(*key, "http://") || strings.HasPrefix(*key, "https://") {
		return *key
	}
	return s.mediaBaseURL + "/" + strings.TrimLeft(*key, "/")
}

func truncatePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= lastMessageLimit {
		return body
	}
	return string(runes[:lastMessageLimit-1]) + "…"
}

func normalizeExternalID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

func defaultStatus(status string) string {
	if status == "" {
		return "pending"
	}
	return status
}

func defaultSendType(st domain.SendType) domain.SendType {
	if st == "" {
		return domain.SendTypeChat
	}
	return st
}

func defaultTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
