package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/invitation/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
)

const pendingEmailConstraint = "invitations_pending_email_key"

const invitationColumns = `id, token_hash, email, full_name, org_id, department_id, role_ids, access_grant, status,
	expires_at, created_by, accepted_by, accepted_at, created_at`

// ErrMissingExpiry is returned by Create when the invitation has no expiry.
var ErrMissingExpiry = errors.New("invitation: expires_at must be set")

type PostgresRepository struct {
	db  *db.Privileged
	now func() time.Time
}

// NewPostgresRepository returns an invitation repository that uses the privileged handle for persistence.
func NewPostgresRepository(handle *db.Privileged) *PostgresRepository {
	return &PostgresRepository{db: handle, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) (string, error) {
	if inv.ExpiresAt.IsZero() {
		return "", ErrMissingExpiry
	}
	token, err := security.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	roleIDs, err := json.Marshal(nonNil(inv.RoleIDs))
	if err != nil {
		return "", err
	}
	var grant any
	if inv.AccessGrant != nil {
		grant = inv.AccessGrant
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.Token = token
	inv.TokenHash = security.HashToken(token)
	inv.Status = domain.StatusPending
	inv.CreatedAt = r.now()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO invitations (id, token_hash, email, full_name, org_id, department_id, role_ids, access_grant, status, expires_at, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.TokenHash, inv.Email, inv.FullName, inv.OrgID, nullString(inv.DepartmentID), string(roleIDs), grant,
		string(inv.Status), inv.ExpiresAt, nullString(inv.CreatedBy), inv.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, pendingEmailConstraint) {
			return "", domain.ErrAlreadyExists
		}
		return "", err
	}
	return token, nil
}

// GetByID returns the invitation for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// GetByToken returns the invitation whose hash matches token, or nil if not found.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, security.HashToken(token))
}

// Accept performs a conditional update so concurrent accepts of one token succeed at most once.
// When nothing was updated it reads the row back to report ErrNotFound, ErrAlreadyAccepted, ErrExpired or ErrNotPending.
func (r *PostgresRepository) Accept(ctx context.Context, token, principalID string) (*domain.Invitation, error) {
	hash := security.HashToken(token)
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'accepted', accepted_by = $2, accepted_at = $3
		 WHERE token_hash = $1 AND status = 'pending' AND expires_at > $3`,
		hash, principalID, now,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	inv, err := r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, hash)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if n == 0 {
		if reason := inv.AcceptError(now); reason != nil {
			return nil, reason
		}
		return nil, domain.ErrNotPending
	}
	return inv, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Invitation, error) {
	var (
		inv                         domain.Invitation
		dept, createdBy, acceptedBy sql.NullString
		roleIDs, grant              []byte
		status                      string
		acceptedAt                  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&inv.ID, &inv.TokenHash, &inv.Email, &inv.FullName, &inv.OrgID, &dept, &roleIDs, &grant, &status,
		&inv.ExpiresAt, &createdBy, &acceptedBy, &acceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv.DepartmentID = dept.String
	inv.CreatedBy = createdBy.String
	inv.AcceptedBy = acceptedBy.String
	inv.Status = domain.Status(status)
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	if len(roleIDs) > 0 {
		if err := json.Unmarshal(roleIDs, &inv.RoleIDs); err != nil {
			return nil, fmt.Errorf("invitation role_ids: %w", err)
		}
	}
	if grant != nil {
		if err := inv.AccessGrant.Scan(grant); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
