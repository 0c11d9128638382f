package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
)

type PostgresProfileRepository struct {
	db DBTX
}

func NewPostgresProfileRepository(db DBTX) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if profile == nil {
		return pkgerrors.ErrInvalidInput
	}
	if profile.Username == "" || profile.PasswordHash == "" {
		return fmt.Errorf("%w: username and password are required", pkgerrors.ErrInvalidInput)
	}
	if !profile.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", pkgerrors.ErrInvalidInput, profile.Role)
	}

	query := `
	INSERT INTO profiles (id, username, password_hash, role)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		profile.ID,
		profile.Username,
		profile.PasswordHash,
		profile.Role,
	).Scan(&profile.CreatedAt)
	if isUniqueViolation(err) {
		return pkgerrors.ErrUsernameExists
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", classify(err))
	}
	return nil
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, username, password_hash, role, created_at FROM profiles WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresProfileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := ` SELECT id, username, password_hash, role, created_at FROM profiles WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *PostgresProfileRepository) getOne(ctx context.Context, query, arg string) (*models.Profile, error) {
	var profile models.Profile

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&profile.ID,
		&profile.Username,
		&profile.PasswordHash,
		&profile.Role,
		&profile.CreatedAt,
	)

	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrProfileNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get profile: %w", classify(err))
	}

	return &profile, nil
}
