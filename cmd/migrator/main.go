package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/lightlabcreation/big-pos-backend/internal/config"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/observability"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/postgres"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

func main() {
	if err := migrateAll(); err != nil {
		slog.Error("migration run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migration run finished successfully")
}

func migrateAll() error {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}
	if err := runMigrations(driver, baseFS, "migrations"); err != nil {
		return fmt.Errorf("base migrations failed: %w", err)
	}
	slog.Info("base migrations applied")

	if cfg.AppEnv == "DEV" {
		// Seeds keep their own version table so they never collide with
		// the schema versions.
		seedDriver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "seed_migrations"})
		if err != nil {
			return fmt.Errorf("init seed driver: %w", err)
		}
		if err := runMigrations(seedDriver, devFS, "test_data"); err != nil {
			return fmt.Errorf("dev seed migrations failed: %w", err)
		}
		slog.Info("dev seed migrations applied")
	}

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if err := ensureAdmin(context.Background(), db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	return nil
}

func runMigrations(driver database.Driver, fsys embed.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}
	return nil
}

// ensureAdmin creates the admin profile. Admins cannot register over the
// API, so this is the only way one comes to exist.
func ensureAdmin(ctx context.Context, db *sql.DB, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	uow := postgres.NewUnitOfWork(db)
	err = uow.Do(ctx, func(ctx context.Context, st repository.Stores) error {
		return st.Profiles.Create(ctx, &models.Profile{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		})
	})
	if errors.Is(err, pkgerrors.ErrUsernameExists) {
		slog.Info("admin profile already exists", "username", username)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("admin profile created", "username", username)
	return nil
}
