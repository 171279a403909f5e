package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

const rolePrimaryKey = "roles_pkey"

type PostgresRepository struct {
	db *db.Privileged
}

// NewPostgresRepository returns a role repository that uses the privileged handle for persistence.
func NewPostgresRepository(handle *db.Privileged) *PostgresRepository {
	return &PostgresRepository{db: handle}
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, name, tier, is_admin, created_at FROM roles WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// Create inserts a role. System roles are stored without an organization.
func (r *PostgresRepository) Create(ctx context.Context, role *domain.Role) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	orgID := role.OrgID
	if role.Tier == domain.TierSystem {
		orgID = ""
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, org_id, name, tier, is_admin, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		role.ID, nullString(orgID), role.Name, string(role.Tier), role.IsAdmin, role.CreatedAt,
	)
	if db.IsUniqueViolation(err, rolePrimaryKey) {
		return ErrAlreadyExists
	}
	return err
}

// ListByPrincipal returns the roles assigned to principalID ordered by name.
func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.org_id, r.name, r.tier, r.is_admin, r.created_at
		 FROM roles r JOIN role_assignments ra ON ra.role_id = r.id
		 WHERE ra.principal_id = $1 ORDER BY r.name`,
		principalID,
	)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// BulkAssign inserts one link per role so a failing role does not undo the others.
func (r *PostgresRepository) BulkAssign(ctx context.Context, a domain.Assignment) ([]domain.Rejection, error) {
	ids := dedupe(a.RoleIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	roles, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}

	var rejected []domain.Rejection
	now := time.Now().UTC()
	for _, id := range ids {
		role, ok := byID[id]
		switch {
		case !ok:
			rejected = append(rejected, domain.Rejection{RoleID: id, Reason: domain.ReasonUnknownRole})
			continue
		case !role.AssignableIn(a.OrgID):
			rejected = append(rejected, domain.Rejection{RoleID: id, Reason: domain.ReasonOtherOrg})
			continue
		}
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO role_assignments (principal_id, role_id, assigned_by, created_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (principal_id, role_id) DO NOTHING`,
			a.PrincipalID, id, nullString(a.AssignedBy), now,
		)
		if err != nil {
			rejected = append(rejected, domain.Rejection{RoleID: id, Reason: domain.ReasonStoreFailure})
		}
	}
	return rejected, nil
}

func scanRoles(rows *sql.Rows) ([]*domain.Role, error) {
	defer rows.Close()
	var out []*domain.Role
	for rows.Next() {
		var (
			role  domain.Role
			orgID sql.NullString
			tier  string
		)
		if err := rows.Scan(&role.ID, &orgID, &role.Name, &tier, &role.IsAdmin, &role.CreatedAt); err != nil {
			return nil, err
		}
		role.OrgID = orgID.String
		role.Tier = domain.Tier(tier)
		out = append(out, &role)
	}
	return out, rows.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
