package service

import (
	"context"
	"time"

	"github.com/spec-kit/chatflow-service/internal/domain"
)

// ContactInput is the raw contact identity delivered by a channel adapter.
type ContactInput struct {
	ExternalID string
	Number     string
	Name       string
	IsGroup    bool
}

// ContactResolver resolves raw channel identities into contacts. Identity
// caching and creation live with the resolver, outside this service.
type ContactResolver interface {
	Resolve(ctx context.Context, tenantID string, input ContactInput) (*domain.Contact, error)
}

// ChannelAdapter physically delivers an outbound send on the ticket's
// channel and reports the channel-native message id. Ack progression
// arrives later through the status webhook.
type ChannelAdapter interface {
	SendText(ctx context.Context, ticket *domain.Ticket, body string) (externalID string, err error)
}

// MediaPipeline downloads and transforms an attachment, returning the
// storage key under which it was persisted.
type MediaPipeline interface {
	Ingest(ctx context.Context, tenantID, sourceURL, mediaType string) (storedKey string, err error)
}

// AssignmentPolicy optionally picks an agent after a queue handoff. Nil
// disables auto-assignment.
type AssignmentPolicy interface {
	AutoAssign(ctx context.Context, ticket *domain.Ticket) error
}

// Locker is the atomic conditional-set-with-expiry primitive backing
// ticket acquisition. Implemented by persistence.Redis.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}
