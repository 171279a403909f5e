// seed inserts development sample data for local testing. Run via go run ./cmd/seed.
// Idempotent: every row is created only when missing, so re-running only prints a fresh dev token.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/config"
	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	identityrepo "github.com/circuitpointe-dev/centora-sub011/internal/identity/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
	orgdomain "github.com/circuitpointe-dev/centora-sub011/internal/organization/domain"
	orgrepo "github.com/circuitpointe-dev/centora-sub011/internal/organization/repository"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
	profilerepo "github.com/circuitpointe-dev/centora-sub011/internal/profile/repository"
	roledomain "github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
	rolerepo "github.com/circuitpointe-dev/centora-sub011/internal/role/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
)

const (
	devOrgID       = "dev-org-001"
	devAdminEmail  = "admin@example.com"
	devPassword    = "Password123!"
	roleSuperAdmin = "role-platform-admin"
	roleOrgAdmin   = "role-dev-org-admin"
	roleOrgStaff   = "role-dev-org-staff"
	seedTimeout    = 30 * time.Second
)

var devRoles = []*roledomain.Role{
	{ID: roleSuperAdmin, Name: "Platform Admin", Tier: roledomain.TierSystem, IsAdmin: true},
	{ID: roleOrgAdmin, OrgID: devOrgID, Name: "Organization Admin", Tier: roledomain.TierClient, IsAdmin: true},
	{ID: roleOrgStaff, OrgID: devOrgID, Name: "Staff", Tier: roledomain.TierClient},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, "text", os.Stderr)
	if cfg.ServiceDSN() == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()
	if err := seed(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("seed failed")
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	handle, err := db.OpenPrivileged(cfg.ServiceDSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer handle.Close()

	orgs := orgrepo.NewPostgresRepository(handle)
	roles := rolerepo.NewPostgresRepository(handle)
	principals := identityrepo.NewPostgresRepository(handle, security.NewHasher(cfg.BcryptCost))
	profiles := profilerepo.NewPostgresRepository(handle)

	err = orgs.Create(ctx, &orgdomain.Organization{ID: devOrgID, Name: "Centora Dev Foundation"})
	switch {
	case errors.Is(err, orgrepo.ErrAlreadyExists):
		logger.WithField("org_id", devOrgID).Info("organization exists")
	case err != nil:
		return fmt.Errorf("create organization: %w", err)
	default:
		logger.WithField("org_id", devOrgID).Info("organization created")
	}

	for _, role := range devRoles {
		if err := roles.Create(ctx, role); err != nil && !errors.Is(err, rolerepo.ErrAlreadyExists) {
			return fmt.Errorf("create role %s: %w", role.ID, err)
		}
	}

	admin, err := principals.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if admin == nil {
		admin, err = principals.Create(ctx, devAdminEmail, devPassword, true)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		logger.WithField("email", devAdminEmail).Info("admin principal created")
	}

	existing, err := profiles.GetByPrincipalID(ctx, admin.ID)
	if err != nil {
		return fmt.Errorf("lookup admin profile: %w", err)
	}
	if existing == nil {
		err = profiles.Create(ctx, &profiledomain.Profile{
			PrincipalID: admin.ID,
			OrgID:       devOrgID,
			FullName:    "Dev Admin",
			Status:      profiledomain.StatusActive,
			AccessGrant: profiledomain.AccessGrant{
				profiledomain.ModuleUsers: {
					Enabled: true,
					Permissions: []profiledomain.Permission{
						profiledomain.PermissionCreate, profiledomain.PermissionRead, profiledomain.PermissionUpdate,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create admin profile: %w", err)
		}
	}

	rejected, err := roles.BulkAssign(ctx, roledomain.Assignment{
		PrincipalID: admin.ID,
		OrgID:       devOrgID,
		RoleIDs:     []string{roleOrgAdmin},
	})
	if err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	for _, r := range rejected {
		logger.WithFields(logrus.Fields{"role_id": r.RoleID, "reason": r.Reason}).Warn("admin role not assigned")
	}

	fmt.Printf("dev admin: %s / %s (principal %s)\n", devAdminEmail, devPassword, admin.ID)
	fmt.Printf("roles: %s (system), %s, %s\n", roleSuperAdmin, roleOrgAdmin, roleOrgStaff)

	if cfg.JWTPrivateKey == "" {
		logger.Info("JWT_PRIVATE_KEY not set; skipping dev token")
		return nil
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return fmt.Errorf("jwt private key: %w", err)
	}
	tokens := security.NewTokenProvider(signer, signer.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	token, expiresAt, err := tokens.IssueAccess(admin.ID, devOrgID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Printf("dev token (expires %s):\n%s\n", expiresAt.Format(time.RFC3339), token)
	return nil
}
