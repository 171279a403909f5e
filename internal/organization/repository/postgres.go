package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/organization/domain"
)

const orgPrimaryKey = "organizations_pkey"

type PostgresRepository struct {
	db *db.Privileged
}

// NewPostgresRepository returns an organization repository backed by the privileged handle.
func NewPostgresRepository(handle *db.Privileged) *PostgresRepository {
	return &PostgresRepository{db: handle}
}

// GetByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	var o domain.Organization
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Create persists the organization. Returns ErrAlreadyExists when the id is taken.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Organization) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.CreatedAt,
	)
	if db.IsUniqueViolation(err, orgPrimaryKey) {
		return ErrAlreadyExists
	}
	return err
}
