package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/identity/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
)

const emailUniqueConstraint = "principals_email_key"

const principalColumns = `id, email, password_hash, email_confirmed, created_at`

type PostgresRepository struct {
	db     *db.Privileged
	hasher *security.Hasher
}

// NewPostgresRepository returns a principal repository backed by the privileged handle.
// Passwords are hashed with hasher before they reach the database.
func NewPostgresRepository(handle *db.Privileged, hasher *security.Hasher) *PostgresRepository {
	return &PostgresRepository{db: handle, hasher: hasher}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// GetByEmail returns the principal with the given email (case-insensitive), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, email)
	return scanPrincipal(row)
}

// Create persists a new principal. Returns ErrAlreadyExists when the email is taken.
func (r *PostgresRepository) Create(ctx context.Context, email, password string, emailConfirmed bool) (*domain.Principal, error) {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p := &domain.Principal{
		ID:             uuid.New().String(),
		Email:          domain.NormalizeEmail(email),
		PasswordHash:   hash,
		EmailConfirmed: emailConfirmed,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO principals (id, email, password_hash, email_confirmed, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Email, p.PasswordHash, p.EmailConfirmed, p.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueConstraint) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return p, nil
}

// Delete removes the principal with the given id; profiles and role assignments cascade.
// Returns nil when no row exists.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	return err
}

func scanPrincipal(row *sql.Row) (*domain.Principal, error) {
	var p domain.Principal
	if err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.EmailConfirmed, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
