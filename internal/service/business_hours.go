package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/repository"
)

// BusinessHoursGate answers whether a ticket's tenant is within its
// configured hours and, when it is not, sends a rate-limited absence
// notice to the ticket.
type BusinessHoursGate struct {
	hours   repository.BusinessHoursRepository
	tickets repository.TicketRepository
	store   *MessageStore
	logger  *zap.Logger

	defaultMessage string
	cooldown       time.Duration
	now            func() time.Time
}

// BusinessHoursGateDependencies bundles collaborators.
type BusinessHoursGateDependencies struct {
	HoursRepo  repository.BusinessHoursRepository
	TicketRepo repository.TicketRepository
	Store      *MessageStore
	Logger     *zap.Logger
}

// NewBusinessHoursGate creates the gate.
func NewBusinessHoursGate(cfg config.FlowConfig, deps BusinessHoursGateDependencies) *BusinessHoursGate {
	return &BusinessHoursGate{
		hours:          deps.HoursRepo,
		tickets:        deps.TicketRepo,
		store:          deps.Store,
		logger:         deps.Logger,
		defaultMessage: cfg.AbsenceMessage,
		cooldown:       cfg.AbsenceCooldown(),
		now:            time.Now,
	}
}

// Check reports whether the current time falls within the tenant's hours
// for today. A weekday without configuration fails open. Outside hours the
// ticket receives an absence notice unless one was sent within the
// cooldown window.
func (g *BusinessHoursGate) Check(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if !ticket.IsResolvable() || ticket.IsGroup {
		return true, nil
	}

	now := g.now()
	cfg, err := g.hours.GetByWeekday(ctx, ticket.TenantID, now.Weekday())
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return true, nil
	}

	within, err := cfg.Contains(now)
	if err != nil {
		g.logger.Warn("invalid business hours configuration; failing open",
			zap.String("tenant_id", ticket.TenantID), zap.Error(err))
		return true, nil
	}
	if within {
		return true, nil
	}

	g.sendAbsenceNotice(ctx, ticket, cfg)
	return false, nil
}

func (g *BusinessHoursGate) sendAbsenceNotice(ctx context.Context, ticket *domain.Ticket, cfg *domain.BusinessHours) {
	now := g.now()
	if ticket.LastAbsenceMessageAt != nil && now.Sub(*ticket.LastAbsenceMessageAt) < g.cooldown {
		return
	}

	message := cfg.Message
	if message == "" {
		message = g.defaultMessage
	}
	if _, err := g.store.SendBot(ctx, ticket, message); err != nil {
		g.logger.Warn("absence notice send failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}

	// SendBot rewrote the ticket's summary fields; stamp the cooldown on a
	// fresh row so the two writes do not clobber each other.
	fresh, err := g.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		g.logger.Warn("reload ticket for absence stamp",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	fresh.LastAbsenceMessageAt = &now
	if err := g.tickets.Update(ctx, fresh); err != nil {
		g.logger.Warn("persist absence stamp",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	*ticket = *fresh
}
