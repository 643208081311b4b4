package service

import (
	"context"

	"github.com/spec-kit/chatflow-service/internal/domain"
	"github.com/spec-kit/chatflow-service/internal/repository"
	apperrors "github.com/spec-kit/chatflow-service/pkg/util/errorutil"
)

// repositoryContactResolver is the default in-process ContactResolver,
// backed by the contacts table. Deployments with a dedicated identity
// service swap it out at wiring time.
type repositoryContactResolver struct {
	contacts repository.ContactRepository
}

// NewRepositoryContactResolver creates the default resolver.
func NewRepositoryContactResolver(contacts repository.ContactRepository) ContactResolver {
	return &repositoryContactResolver{contacts: contacts}
}

func (r *repositoryContactResolver) Resolve(ctx context.Context, tenantID string, input ContactInput) (*domain.Contact, error) {
	number := input.Number
	if number == "" {
		number = input.ExternalID
	}
	if number == "" {
		return nil, apperrors.NewValidationError("contact identity required", nil)
	}

	contact := &domain.Contact{
		TenantID: tenantID,
		Name:     input.Name,
		Number:   number,
		IsGroup:  input.IsGroup,
	}
	if err := r.contacts.Upsert(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}
