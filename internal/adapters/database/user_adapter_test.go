package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/adapters/database"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

func TestUserAdapter_Create(t *testing.T) {
	t.Run("normalises email", func(t *testing.T) {
		client, mock := newMockClient(t)
		adapter := database.NewUserAdapter(client)
		user := &entities.User{ID: "u-1", Name: "Ada", Email: "  Ada@Lab.ORG ", Role: entities.RolePathologist, IsActive: true}

		mock.ExpectExec(`INSERT INTO "users" .*'ada@lab.org'`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, adapter.Create(context.Background(), user))
		assert.Equal(t, "ada@lab.org", user.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		client, mock := newMockClient(t)
		adapter := database.NewUserAdapter(client)

		mock.ExpectExec(`INSERT INTO "users"`).WillReturnError(&pq.Error{Code: "23505"})

		err := adapter.Create(context.Background(), &entities.User{ID: "u-2", Email: "ada@lab.org"})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})
}

func TestUserAdapter_GetByEmail(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := database.NewUserAdapter(client)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM "users" WHERE \("email" = 'tech@lab.org'\)`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "email", "password_hash", "role", "department",
			"license_number", "phone", "is_active", "last_login_at", "created_at", "updated_at",
		}).AddRow("u-3", "Tech", "tech@lab.org", "hash", "Technician", "Histology", nil, nil, true, nil, now, now))

	user, err := adapter.GetByEmail(context.Background(), "Tech@Lab.org")

	require.NoError(t, err)
	assert.Equal(t, entities.RoleLabTechnician, user.Role)
	assert.Equal(t, "Histology", user.Department)
	assert.Empty(t, user.Phone)
	assert.Nil(t, user.LastLoginAt)
}

func TestUserAdapter_GetByID_NotFound(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := database.NewUserAdapter(client)

	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := adapter.GetByID(context.Background(), "nobody")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
