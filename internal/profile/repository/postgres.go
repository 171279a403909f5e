package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
)

const profileColumns = `principal_id, org_id, full_name, department_id, access_grant, status, created_at, updated_at`

type PostgresRepository struct {
	db *db.Privileged
}

// NewPostgresRepository returns a profile repository that uses the privileged handle for persistence.
func NewPostgresRepository(handle *db.Privileged) *PostgresRepository {
	return &PostgresRepository{db: handle}
}

// GetByPrincipalID returns the profile for principalID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByPrincipalID(ctx context.Context, principalID string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE principal_id = $1`, principalID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListByOrg returns all profiles of the org ordered by creation time. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE org_id = $1 ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create persists the profile. Timestamps default to now when zero.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.AccessGrant == nil {
		p.AccessGrant = domain.AccessGrant{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.PrincipalID, p.OrgID, p.FullName, nullString(p.DepartmentID), p.AccessGrant, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Delete removes the profile of principalID. Returns nil when no row exists.
func (r *PostgresRepository) Delete(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE principal_id = $1`, principalID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*domain.Profile, error) {
	var (
		p      domain.Profile
		dept   sql.NullString
		status string
	)
	if err := s.Scan(&p.PrincipalID, &p.OrgID, &p.FullName, &dept, &p.AccessGrant, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DepartmentID = dept.String
	p.Status = domain.Status(status)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
