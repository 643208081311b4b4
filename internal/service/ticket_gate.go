package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/repository"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// TicketGate guarantees that under arbitrarily many concurrent inbound
// events for one contact, exactly one caller creates the ticket and every
// caller returns the same ticket.
type TicketGate struct {
	tickets repository.TicketRepository
	locker  Locker
	logger  *zap.Logger

	lockTTL  time.Duration
	lockWait time.Duration
}

// TicketGateDependencies bundles collaborators.
type TicketGateDependencies struct {
	TicketRepo repository.TicketRepository
	Locker     Locker
	Logger     *zap.Logger
}

// NewTicketGate creates the gate.
func NewTicketGate(cfg config.FlowConfig, deps TicketGateDependencies) *TicketGate {
	return &TicketGate{
		tickets:  deps.TicketRepo,
		locker:   deps.Locker,
		logger:   deps.Logger,
		lockTTL:  cfg.LockTTL(),
		lockWait: cfg.LockWait(),
	}
}

func lockKey(channelInstanceID, contactID string) string {
	return fmt.Sprintf("lock:ticket:%s:%s", channelInstanceID, contactID)
}

// AcquireOrCreate finds the open ticket for the contact or creates exactly
// one. isNew is true only for the single caller that created it.
func (g *TicketGate) AcquireOrCreate(ctx context.Context, ci *domain.ChannelInstance, contact *domain.Contact) (*domain.Ticket, bool, error) {
	// Fast path: an open ticket usually already exists.
	ticket, err := g.tickets.FindOpenByContact(ctx, ci.TenantID, ci.ID, contact.ID)
	if err != nil {
		return nil, false, err
	}
	if ticket != nil {
		return ticket, false, nil
	}

	key := lockKey(ci.ID, contact.ID)
	token := uuid.NewString()

	acquired, err := g.locker.AcquireLock(ctx, key, token, g.lockTTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return g.awaitWinner(ctx, ci, contact, key)
	}
	defer func() {
		if err := g.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			g.logger.Warn("release ticket lock", zap.String("key", key), zap.Error(err))
		}
	}()

	// Re-check inside the lock: a ticket may have been created between the
	// fast-path read and acquisition.
	ticket, err = g.tickets.FindOpenByContact(ctx, ci.TenantID, ci.ID, contact.ID)
	if err != nil {
		return nil, false, err
	}
	if ticket != nil {
		return ticket, false, nil
	}

	ticket = &domain.Ticket{
		TenantID:          ci.TenantID,
		ContactID:         contact.ID,
		ChannelInstanceID: ci.ID,
		Channel:           ci.Channel,
		Status:            domain.TicketStatusPending,
		IsGroup:           contact.IsGroup,
		ChatFlowStatus:    domain.FlowStatusNotStarted,
	}
	if err := g.tickets.Create(ctx, ticket); err != nil {
		return nil, false, err
	}
	g.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("contact_id", contact.ID),
		zap.String("channel_instance_id", ci.ID))
	return ticket, true, nil
}

// awaitWinner polls for the ticket being created by the lock holder, with
// exponential backoff up to a hard deadline. Ending without a ticket is a
// typed LockTimeout; the triggering message must not be dropped.
func (g *TicketGate) awaitWinner(ctx context.Context, ci *domain.ChannelInstance, contact *domain.Contact, key string) (*domain.Ticket, bool, error) {
	deadline := time.Now().Add(g.lockWait)
	backoff := 50 * time.Millisecond
	const maxBackoff = 800 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(backoff):
		}

		ticket, err := g.tickets.FindOpenByContact(ctx, ci.TenantID, ci.ID, contact.ID)
		if err != nil {
			return nil, false, err
		}
		if ticket != nil {
			return ticket, false, nil
		}
		if time.Now().After(deadline) {
			g.logger.Warn("ticket lock wait expired", zap.String("key", key))
			return nil, false, apperrors.NewLockTimeout(key)
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
