package repository

import (
	"context"

	"github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
)

// Repository defines persistence for directory profiles.
type Repository interface {
	GetByPrincipalID(ctx context.Context, principalID string) (*domain.Profile, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Profile, error)
	// Create persists the profile. PrincipalID, OrgID and Status must be set.
	Create(ctx context.Context, p *domain.Profile) error
	// Delete removes the profile. Deleting a missing profile is not an error.
	Delete(ctx context.Context, principalID string) error
}
