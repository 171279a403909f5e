package repository

import (
	"context"
	"errors"

	"github.com/circuitpointe-dev/centora-sub011/internal/identity/domain"
)

// ErrAlreadyExists is returned by Create when a principal with the same email exists.
var ErrAlreadyExists = errors.New("identity: principal already exists")

// Repository defines persistence for principals.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	// Create hashes password and persists a new principal with a generated id.
	Create(ctx context.Context, email, password string, emailConfirmed bool) (*domain.Principal, error)
	// Delete removes the principal. Deleting a missing principal is not an error.
	Delete(ctx context.Context, id string) error
}
