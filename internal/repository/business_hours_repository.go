package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// BusinessHoursRepository reads per-weekday schedule configuration.
type BusinessHoursRepository interface {
	// GetByWeekday returns nil when the weekday has no configuration.
	GetByWeekday(ctx context.Context, tenantID string, weekday time.Weekday) (*domain.BusinessHours, error)
}

type businessHoursRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessHoursRepository instantiates repository.
func NewBusinessHoursRepository(pool *pgxpool.Pool) BusinessHoursRepository {
	return &businessHoursRepository{pool: pool}
}

func (r *businessHoursRepository) GetByWeekday(ctx context.Context, tenantID string, weekday time.Weekday) (*domain.BusinessHours, error) {
	const query = `
        SELECT id, tenant_id, weekday, mode, first_start, first_end, second_start, second_end,
               message, created_at, updated_at
        FROM business_hours WHERE tenant_id=$1 AND weekday=$2`
	var (
		hours domain.BusinessHours
		day   int
	)
	if err := r.pool.QueryRow(ctx, query, tenantID, int(weekday)).Scan(
		&hours.ID,
		&hours.TenantID,
		&day,
		&hours.Mode,
		&hours.FirstStart,
		&hours.FirstEnd,
		&hours.SecondStart,
		&hours.SecondEnd,
		&hours.Message,
		&hours.CreatedAt,
		&hours.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	hours.Weekday = time.Weekday(day)
	return &hours, nil
}
