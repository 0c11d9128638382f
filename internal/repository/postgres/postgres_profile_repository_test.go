package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/postgres"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresProfileRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresProfileRepository(db)
	ctx := context.Background()

	t.Run("NilProfile", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrInvalidInput)
	})

	t.Run("MissingPassword", func(t *testing.T) {
		err := repo.Create(ctx, &models.Profile{ID: "p-1", Username: "alice", Role: models.RoleConsumer})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		err := repo.Create(ctx, &models.Profile{ID: "p-1", Username: "alice", PasswordHash: "hash", Role: "pirate"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("UsernameExists", func(t *testing.T) {
		profile := &models.Profile{ID: "p-1", Username: "alice", PasswordHash: "hash", Role: models.RoleConsumer}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles`)).
			WithArgs("p-1", "alice", "hash", models.RoleConsumer).
			WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, profile), pkgerrors.ErrUsernameExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		profile := &models.Profile{ID: "p-2", Username: "kiosk", PasswordHash: "hash", Role: models.RoleRetailer}
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles (id, username, password_hash, role)`)).
			WithArgs("p-2", "kiosk", "hash", models.RoleRetailer).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

		require.NoError(t, repo.Create(ctx, profile))
		assert.WithinDuration(t, createdAt, profile.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresProfileRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresProfileRepository(db)
	ctx := context.Background()
	columns := []string{"id", "username", "password_hash", "role", "created_at"}

	t.Run("ByUsername", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, password_hash, role, created_at FROM profiles WHERE username = $1`)).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("p-1", "alice", "hash", "consumer", time.Now()))

		profile, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "p-1", profile.ID)
		assert.Equal(t, models.RoleConsumer, profile.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyUsername", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE id = $1`)).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "ghost")
		assert.ErrorIs(t, err, pkgerrors.ErrProfileNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
