package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// ChatFlowRepository loads flow definitions. Definitions are parsed and
// validated here, once per load; downstream code never sees raw JSON.
type ChatFlowRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ChatFlow, error)
}

type chatFlowRepository struct {
	pool *pgxpool.Pool
}

// NewChatFlowRepository instantiates repository.
func NewChatFlowRepository(pool *pgxpool.Pool) ChatFlowRepository {
	return &chatFlowRepository{pool: pool}
}

func (r *chatFlowRepository) GetByID(ctx context.Context, id string) (*domain.ChatFlow, error) {
	const query = `
        SELECT id, tenant_id, name, is_active, definition, created_at, updated_at
        FROM chat_flows WHERE id=$1`
	var (
		flow domain.ChatFlow
		raw  []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&flow.ID,
		&flow.TenantID,
		&flow.Name,
		&flow.IsActive,
		&raw,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	); err != nil {
		return nil, err
	}

	def, err := domain.ParseDefinition(raw)
	if err != nil {
		return nil, err
	}
	flow.Definition = def
	return &flow, nil
}
