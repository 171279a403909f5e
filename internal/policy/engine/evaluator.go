package engine

import (
	"context"

	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

// ProvisioningInput is what the provisioning policy sees about a caller acting on a target org.
type ProvisioningInput struct {
	CallerID    string
	TargetOrgID string
	// Profile is nil when the caller has no directory record.
	Profile *profiledomain.Profile
	Roles   []*roledomain.Role
}

// Authorizer decides whether a caller may provision users into an organization.
type Authorizer interface {
	AuthorizeProvisioning(ctx context.Context, in ProvisioningInput) (bool, error)
}
