// Package adapter binds the provisioning saga's collaborator interfaces to the Postgres repositories.
// Creates are attempted once; deletes retry transient database errors.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	identitydomain "github.com/circuitpointe-dev/centora-sub011/internal/identity/domain"
	identityrepo "github.com/circuitpointe-dev/centora-sub011/internal/identity/repository"
	invitationdomain "github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/platform/retry"
	"github.com/circuitpointe-dev/centora-sub011/internal/provisioning/service"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

// PrincipalRepo is the subset of the identity repository the adapter needs.
type PrincipalRepo interface {
	Create(ctx context.Context, email, password string, emailConfirmed bool) (*identitydomain.Principal, error)
	Delete(ctx context.Context, id string) error
}

// ProfileRepo is the subset of the profile repository the adapter needs.
type ProfileRepo interface {
	Create(ctx context.Context, p *profiledomain.Profile) error
	Delete(ctx context.Context, principalID string) error
}

// InvitationRepo is the subset of the invitation repository the adapter needs.
type InvitationRepo interface {
	Create(ctx context.Context, inv *invitationdomain.Invitation) (string, error)
	Accept(ctx context.Context, token, principalID string) (*invitationdomain.Invitation, error)
	Delete(ctx context.Context, id string) error
}

// RoleRepo is the subset of the role repository the adapter needs.
type RoleRepo interface {
	BulkAssign(ctx context.Context, a roledomain.Assignment) ([]roledomain.Rejection, error)
}

// Identity implements service.IdentityProvider.
type Identity struct {
	repo   PrincipalRepo
	policy retry.Policy
}

func NewIdentity(repo PrincipalRepo, policy retry.Policy) *Identity {
	return &Identity{repo: repo, policy: policy}
}

func (a *Identity) CreatePrincipal(ctx context.Context, email, password string, emailConfirmed bool) (string, error) {
	p, err := a.repo.Create(ctx, email, password, emailConfirmed)
	if err != nil {
		if errors.Is(err, identityrepo.ErrAlreadyExists) {
			return "", fmt.Errorf("%w: %w", service.ErrAlreadyExists, err)
		}
		return "", err
	}
	return p.ID, nil
}

func (a *Identity) DeletePrincipal(ctx context.Context, id string) error {
	return retry.Do(ctx, a.policy, db.IsTransient, func(ctx context.Context) error { return a.repo.Delete(ctx, id) })
}

// Directory implements service.DirectoryStore.
type Directory struct {
	repo   ProfileRepo
	policy retry.Policy
}

func NewDirectory(repo ProfileRepo, policy retry.Policy) *Directory {
	return &Directory{repo: repo, policy: policy}
}

func (a *Directory) CreateProfile(ctx context.Context, p *profiledomain.Profile) error {
	return a.repo.Create(ctx, p)
}

func (a *Directory) DeleteProfile(ctx context.Context, principalID string) error {
	return retry.Do(ctx, a.policy, db.IsTransient, func(ctx context.Context) error { return a.repo.Delete(ctx, principalID) })
}

// Ledger implements service.InvitationLedger.
type Ledger struct {
	repo   InvitationRepo
	policy retry.Policy
}

func NewLedger(repo InvitationRepo, policy retry.Policy) *Ledger {
	return &Ledger{repo: repo, policy: policy}
}

func (a *Ledger) CreateInvitation(ctx context.Context, inv *invitationdomain.Invitation) (string, error) {
	token, err := a.repo.Create(ctx, inv)
	if err != nil {
		if errors.Is(err, invitationdomain.ErrAlreadyExists) {
			return "", fmt.Errorf("%w: %w", service.ErrAlreadyExists, err)
		}
		return "", err
	}
	return token, nil
}

func (a *Ledger) AcceptInvitation(ctx context.Context, token, principalID string) error {
	_, err := a.repo.Accept(ctx, token, principalID)
	return err
}

func (a *Ledger) DeleteInvitation(ctx context.Context, id string) error {
	return retry.Do(ctx, a.policy, db.IsTransient, func(ctx context.Context) error { return a.repo.Delete(ctx, id) })
}

// Roles implements service.RoleAssignmentStore.
type Roles struct {
	repo RoleRepo
}

func NewRoles(repo RoleRepo) *Roles {
	return &Roles{repo: repo}
}

func (a *Roles) BulkAssign(ctx context.Context, as roledomain.Assignment) ([]roledomain.Rejection, error) {
	return a.repo.BulkAssign(ctx, as)
}

var (
	_ service.IdentityProvider    = (*Identity)(nil)
	_ service.DirectoryStore      = (*Directory)(nil)
	_ service.InvitationLedger    = (*Ledger)(nil)
	_ service.RoleAssignmentStore = (*Roles)(nil)
)
