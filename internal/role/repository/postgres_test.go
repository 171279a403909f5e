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
	"github.com/circuitpointe-dev/centora-sub011/internal/role/domain"
)

var roleCols = []string{"id", "org_id", "name", "tier", "is_admin", "created_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewPostgresRepository(db.NewPrivileged(conn)), mock
}

func TestGetByIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM roles WHERE id IN \(\$1, \$2\)`).
		WithArgs("role-1", "sys-admin").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("role-1", "org-1", "Grant Officer", "client", false, now).
			AddRow("sys-admin", nil, "Platform Admin", "system", true, now))

	roles, err := repo.GetByIDs(context.Background(), []string{"role-1", "sys-admin"})
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "org-1", roles[0].OrgID)
	assert.Equal(t, domain.TierSystem, roles[1].Tier)
	assert.Empty(t, roles[1].OrgID)
	assert.True(t, roles[1].IsAdmin)
}

func TestGetByIDs_EmptySkipsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	roles, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_SystemRoleDropsOrg(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO roles`).
		WithArgs("sys-admin", nil, "Platform Admin", "system", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	role := &domain.Role{ID: "sys-admin", OrgID: "org-1", Name: "Platform Admin", Tier: domain.TierSystem, IsAdmin: true}
	require.NoError(t, repo.Create(context.Background(), role))
	assert.False(t, role.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO roles`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: rolePrimaryKey})

	err := repo.Create(context.Background(), &domain.Role{ID: "role-1", OrgID: "org-1", Name: "Staff", Tier: domain.TierClient})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestListByPrincipal(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`JOIN role_assignments ra ON ra.role_id = r.id`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("role-1", "org-1", "Org Admin", "client", true, time.Now()))

	roles, err := repo.ListByPrincipal(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.True(t, roles[0].IsAdmin)
}

func TestBulkAssign(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("partial failure reports rejected roles", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM roles WHERE id IN \(\$1, \$2, \$3, \$4\)`).
			WithArgs("role-1", "role-2", "ghost", "foreign").
			WillReturnRows(sqlmock.NewRows(roleCols).
				AddRow("role-1", "org-1", "Editor", "client", false, now).
				AddRow("role-2", "org-1", "Viewer", "client", false, now).
				AddRow("foreign", "org-2", "Other", "client", false, now))
		mock.ExpectExec(`INSERT INTO role_assignments`).
			WithArgs("p-1", "role-1", "admin-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO role_assignments`).
			WithArgs("p-1", "role-2", "admin-1", sqlmock.AnyArg()).
			WillReturnError(errors.New("boom"))

		rejected, err := repo.BulkAssign(ctx, domain.Assignment{
			PrincipalID: "p-1", OrgID: "org-1", AssignedBy: "admin-1",
			RoleIDs: []string{"role-1", "role-2", "role-1", " ", "ghost", "foreign"},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.Rejection{
			{RoleID: "role-2", Reason: domain.ReasonStoreFailure},
			{RoleID: "ghost", Reason: domain.ReasonUnknownRole},
			{RoleID: "foreign", Reason: domain.ReasonOtherOrg},
		}, rejected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup failure is an error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM roles`).WillReturnError(errors.New("connection refused"))

		_, err := repo.BulkAssign(ctx, domain.Assignment{PrincipalID: "p-1", OrgID: "org-1", RoleIDs: []string{"role-1"}})
		assert.Error(t, err)
	})

	t.Run("no roles", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rejected, err := repo.BulkAssign(ctx, domain.Assignment{PrincipalID: "p-1", OrgID: "org-1"})
		require.NoError(t, err)
		assert.Empty(t, rejected)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
