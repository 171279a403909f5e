package repository

import (
	"context"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
)

// Repository defines persistence for invitations. Tokens are never stored; lookups hash the presented token.
type Repository interface {
	// Create assigns token and hash to inv (and an ID when empty), persists it as pending and returns the plaintext token.
	// ExpiresAt must be set by the caller.
	Create(ctx context.Context, inv *domain.Invitation) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByToken(ctx context.Context, token string) (*domain.Invitation, error)
	// Accept transitions a pending, unexpired invitation to accepted exactly once.
	Accept(ctx context.Context, token, principalID string) (*domain.Invitation, error)
	// Delete is a no-op for a missing invitation.
	Delete(ctx context.Context, id string) error
	// ExpireStale marks pending invitations whose expiry is at or before now as expired and returns how many changed.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
