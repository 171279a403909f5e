package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/organization/domain"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(db.NewPrivileged(conn)), mock
}

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT id, name, created_at FROM organizations WHERE id = \\$1").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow("org-1", "Hope Foundation", at))

	o, err := repo.GetByID(context.Background(), "org-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "Hope Foundation", o.Name)
	assert.Equal(t, at, o.CreatedAt)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM organizations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}))

	o, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO organizations").
		WithArgs("org-1", "Hope Foundation", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := &domain.Organization{ID: "org-1", Name: "Hope Foundation"}
	require.NoError(t, repo.Create(context.Background(), o))
	assert.False(t, o.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: orgPrimaryKey})

	err := repo.Create(context.Background(), &domain.Organization{ID: "org-1", Name: "Hope Foundation"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestCreate_Invalid(t *testing.T) {
	repo, _ := newMockRepo(t)
	assert.Error(t, repo.Create(context.Background(), &domain.Organization{ID: "org-1"}))
}
