package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// MessageRepository encapsulates message persistence. A unique index on
// (tenant_id, external_id) backs the service-level deduplication.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	Update(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// GetByExternalID returns nil when no row carries the external id.
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error)
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, external_id, ticket_id, contact_id, body, media_type, media_url, ack,
       status, from_me, read, send_type, quoted_msg_id, ts, tenant_id, created_at, updated_at`

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (external_id, ticket_id, contact_id, body, media_type, media_url, ack,
            status, from_me, read, send_type, quoted_msg_id, ts, tenant_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		msg.ExternalID,
		msg.TicketID,
		msg.ContactID,
		msg.Body,
		msg.MediaType,
		msg.MediaURL,
		msg.Ack,
		msg.Status,
		msg.FromMe,
		msg.Read,
		msg.SendType,
		msg.QuotedMsgID,
		msg.Timestamp,
		msg.TenantID,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
}

func (r *messageRepository) Update(ctx context.Context, msg *domain.Message) error {
	const query = `
        UPDATE messages SET body=$1, ack=$2, status=$3, read=$4, media_type=$5, media_url=$6,
            updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		msg.Body,
		msg.Ack,
		msg.Status,
		msg.Read,
		msg.MediaType,
		msg.MediaURL,
		msg.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *messageRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id=$1 AND external_id=$2`
	msg, err := r.fetchSingle(ctx, query, tenantID, externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + messageColumns + `
        FROM messages WHERE ticket_id=$1 ORDER BY ts ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	var msg domain.Message
	if err := scanMessage(r.pool.QueryRow(ctx, query, args...), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func scanMessage(row pgx.Row, msg *domain.Message) error {
	return row.Scan(
		&msg.ID,
		&msg.ExternalID,
		&msg.TicketID,
		&msg.ContactID,
		&msg.Body,
		&msg.MediaType,
		&msg.MediaURL,
		&msg.Ack,
		&msg.Status,
		&msg.FromMe,
		&msg.Read,
		&msg.SendType,
		&msg.QuotedMsgID,
		&msg.Timestamp,
		&msg.TenantID,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
}
