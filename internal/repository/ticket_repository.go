package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// FindOpenByContact returns the single pending/open ticket for the
	// contact on the channel instance, or nil when none exists.
	FindOpenByContact(ctx context.Context, tenantID, channelInstanceID, contactID string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, tenant_id, contact_id, channel_instance_id, channel, status, is_group,
       queue_id, user_id, unread_messages, answered, last_message, last_message_at, closed_at,
       last_absence_message_at, chat_flow_id, step_chat_flow, chat_flow_status, bot_retries,
       last_interaction_bot, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, contact_id, channel_instance_id, channel, status, is_group,
            queue_id, user_id, unread_messages, answered, last_message, chat_flow_id, step_chat_flow,
            chat_flow_status, bot_retries)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.ContactID,
		ticket.ChannelInstanceID,
		ticket.Channel,
		ticket.Status,
		ticket.IsGroup,
		ticket.QueueID,
		ticket.UserID,
		ticket.UnreadMessages,
		ticket.Answered,
		ticket.LastMessage,
		ticket.ChatFlowID,
		ticket.StepChatFlow,
		ticket.ChatFlowStatus,
		ticket.BotRetries,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, queue_id=$2, user_id=$3, unread_messages=$4, answered=$5,
            last_message=$6, last_message_at=$7, closed_at=$8, last_absence_message_at=$9,
            chat_flow_id=$10, step_chat_flow=$11, chat_flow_status=$12, bot_retries=$13,
            last_interaction_bot=$14, updated_at=NOW()
        WHERE id=$15`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.QueueID,
		ticket.UserID,
		ticket.UnreadMessages,
		ticket.Answered,
		ticket.LastMessage,
		ticket.LastMessageAt,
		ticket.ClosedAt,
		ticket.LastAbsenceMessageAt,
		ticket.ChatFlowID,
		ticket.StepChatFlow,
		ticket.ChatFlowStatus,
		ticket.BotRetries,
		ticket.LastInteractionBot,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindOpenByContact(ctx context.Context, tenantID, channelInstanceID, contactID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND channel_instance_id=$2 AND contact_id=$3 AND status IN ('pending','open')
        ORDER BY created_at DESC LIMIT 1`
	ticket, err := r.fetchSingle(ctx, query, tenantID, channelInstanceID, contactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.ContactID,
		&ticket.ChannelInstanceID,
		&ticket.Channel,
		&ticket.Status,
		&ticket.IsGroup,
		&ticket.QueueID,
		&ticket.UserID,
		&ticket.UnreadMessages,
		&ticket.Answered,
		&ticket.LastMessage,
		&ticket.LastMessageAt,
		&ticket.ClosedAt,
		&ticket.LastAbsenceMessageAt,
		&ticket.ChatFlowID,
		&ticket.StepChatFlow,
		&ticket.ChatFlowStatus,
		&ticket.BotRetries,
		&ticket.LastInteractionBot,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
