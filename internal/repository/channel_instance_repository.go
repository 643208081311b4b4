package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// ChannelInstanceRepository reads channel instance configuration.
type ChannelInstanceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ChannelInstance, error)
}

type channelInstanceRepository struct {
	pool *pgxpool.Pool
}

// NewChannelInstanceRepository instantiates repository.
func NewChannelInstanceRepository(pool *pgxpool.Pool) ChannelInstanceRepository {
	return &channelInstanceRepository{pool: pool}
}

func (r *channelInstanceRepository) GetByID(ctx context.Context, id string) (*domain.ChannelInstance, error) {
	const query = `
        SELECT id, tenant_id, channel, name, status, chat_flow_id, flow_test_number, created_at, updated_at
        FROM channel_instances WHERE id=$1`
	var ci domain.ChannelInstance
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ci.ID,
		&ci.TenantID,
		&ci.Channel,
		&ci.Name,
		&ci.Status,
		&ci.ChatFlowID,
		&ci.FlowTestNumber,
		&ci.CreatedAt,
		&ci.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ci, nil
}
