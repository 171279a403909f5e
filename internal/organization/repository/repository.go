package repository

import (
	"context"
	"errors"

	"github.com/circuitpointe-dev/centora-sub011/internal/organization/domain"
)

// ErrAlreadyExists is returned by Create when the id is taken.
var ErrAlreadyExists = errors.New("organization already exists")

// Repository defines persistence for organizations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	Create(ctx context.Context, o *domain.Organization) error
}
