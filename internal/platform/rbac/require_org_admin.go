// Package rbac guards administrative operations on an organization.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/circuitpointe-dev/centora-sub011/internal/policy/engine"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/server/interceptors"
)

var (
	// ErrUnauthenticated means the context carries no principal.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied means the policy denied the caller.
	ErrPermissionDenied = errors.New("organization admin required")
)

// ProfileGetter returns the caller's directory record, or nil if none.
type ProfileGetter interface {
	GetByPrincipalID(ctx context.Context, principalID string) (*profiledomain.Profile, error)
}

// RoleLister returns the roles assigned to a principal.
type RoleLister interface {
	ListByPrincipal(ctx context.Context, principalID string) ([]*roledomain.Role, error)
}

// OrgAdminGuard resolves the caller's profile and roles and asks the policy engine.
type OrgAdminGuard struct {
	profiles   ProfileGetter
	roles      RoleLister
	authorizer engine.Authorizer
}

func NewOrgAdminGuard(profiles ProfileGetter, roles RoleLister, authorizer engine.Authorizer) *OrgAdminGuard {
	return &OrgAdminGuard{profiles: profiles, roles: roles, authorizer: authorizer}
}

// RequireOrgAdmin ensures the caller is authenticated and may provision users into targetOrgID.
// Returns the caller's principal id on success; ErrUnauthenticated or ErrPermissionDenied on denial.
// Store and policy failures are returned wrapped and mean the decision could not be made.
func (g *OrgAdminGuard) RequireOrgAdmin(ctx context.Context, targetOrgID string) (string, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	profile, err := g.profiles.GetByPrincipalID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve caller profile: %w", err)
	}
	roles, err := g.roles.ListByPrincipal(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve caller roles: %w", err)
	}
	allowed, err := g.authorizer.AuthorizeProvisioning(ctx, engine.ProvisioningInput{
		CallerID:    userID,
		TargetOrgID: targetOrgID,
		Profile:     profile,
		Roles:       roles,
	})
	if err != nil {
		return "", fmt.Errorf("evaluate provisioning policy: %w", err)
	}
	if !allowed {
		return "", ErrPermissionDenied
	}
	return userID, nil
}
