package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// ContactRepository persists resolved contact identities.
type ContactRepository interface {
	// Upsert inserts the contact or refreshes its name, keyed by
	// (tenant_id, number).
	Upsert(ctx context.Context, contact *domain.Contact) error
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository instantiates repository.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) Upsert(ctx context.Context, contact *domain.Contact) error {
	const query = `
        INSERT INTO contacts (tenant_id, name, number, is_group)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, number)
        DO UPDATE SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE contacts.name END,
                      updated_at = NOW()
        RETURNING id, name, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		contact.TenantID,
		contact.Name,
		contact.Number,
		contact.IsGroup,
	).Scan(&contact.ID, &contact.Name, &contact.CreatedAt, &contact.UpdatedAt)
}
