package repository

import (
	"context"
	"errors"

	"github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

// ErrAlreadyExists is returned by Create when the role id is taken.
var ErrAlreadyExists = errors.New("role already exists")

// Repository defines persistence for roles and role assignments.
type Repository interface {
	// GetByIDs returns the roles that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Role, error)
	Create(ctx context.Context, role *domain.Role) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Role, error)
	// BulkAssign links each assignable role to the principal and reports every role it could not link.
	// Re-assigning an existing link is a no-op. An error means no role was attempted.
	BulkAssign(ctx context.Context, a domain.Assignment) ([]domain.Rejection, error)
}
