package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/auth"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const authTracer = "auth-service"

type AuthService interface {
	Register(ctx context.Context, username, password string, role models.Role) (*models.Profile, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, userID string) error
}

type authService struct {
	uow         repository.UnitOfWork
	engine      *ledger.Engine
	redisClient redis.RedisClient
	tokens      *auth.JWTService
}

func NewAuthService(uow repository.UnitOfWork, engine *ledger.Engine, redisClient redis.RedisClient, tokens *auth.JWTService) *authService {
	return &authService{uow: uow, engine: engine, redisClient: redisClient, tokens: tokens}
}

// Register creates a profile. Consumers and retailers get their dashboard
// wallet straight away.
func (s *authService) Register(ctx context.Context, username, password string, role models.Role) (*models.Profile, error) {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "Register")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return nil, pkgerrors.ErrInvalidInput
	}
	if role == "" {
		role = models.RoleConsumer
	}
	if !role.Valid() || role == models.RoleAdmin {
		span.SetStatus(codes.Error, "role not allowed")
		return nil, fmt.Errorf("%w: role %q cannot self-register", pkgerrors.ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	profile := &models.Profile{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	err = s.uow.Do(ctx, func(ctx context.Context, st repository.Stores) error {
		return st.Profiles.Create(ctx, profile)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile creation failed")
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) {
			slog.Warn("username already exists", "username", username)
		} else {
			slog.Error("failed to create profile", "username", username, "error", err)
		}
		return nil, err
	}

	if role.OwnsWallets() {
		if _, err := s.engine.GetOrCreateWallet(ctx, profile.ID, models.WalletDashboard); err != nil {
			// The wallet is created lazily on first use anyway.
			slog.Error("failed to create dashboard wallet", "profile_id", profile.ID, "error", err)
		}
	}

	slog.Info("profile registered", "profile_id", profile.ID, "username", username, "role", role)
	return profile, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "Login")
	defer span.End()

	var profile *models.Profile
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		profile, err = st.Profiles.GetByUsername(ctx, username)
		return err
	})
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateJWT(profile)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, auth.TokenKey(profile.ID), token, s.tokens.TTL()); err != nil {
		span.RecordError(err)
		slog.Error("failed to store JWT", "profile_id", profile.ID, "error", err)
		return "", fmt.Errorf("%w: failed to store token", pkgerrors.ErrInternal)
	}

	slog.Info("profile logged in", "username", username, "profile_id", profile.ID)
	return token, nil
}

// Logout revokes the caller's current token.
func (s *authService) Logout(ctx context.Context, userID string) error {
	if err := s.redisClient.Del(ctx, auth.TokenKey(userID)); err != nil {
		slog.Error("failed to revoke token", "profile_id", userID, "error", err)
		return fmt.Errorf("%w: failed to revoke token", pkgerrors.ErrInternal)
	}
	return nil
}
