package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
)

type contextKey int

const (
	userIDKey contextKey = iota
	roleKey
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, userID string, role models.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// Identity returns the caller stored by AuthMiddleware.
func Identity(ctx context.Context) (string, models.Role, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", "", false
	}
	role, _ := ctx.Value(roleKey).(models.Role)
	return userID, role, true
}

func AuthMiddleware(redisClient redis.RedisClient, tokens *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := parts[1]
			claims, err := tokens.ValidateJWT(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			// Only the latest token issued at login is accepted.
			storedToken, err := redisClient.Get(r.Context(), TokenKey(claims.UserID))
			if err != nil || storedToken != tokenStr {
				slog.Error("invalid or revoked token", "user_id", claims.UserID, "error", err)
				http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), claims.UserID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, role, ok := Identity(r.Context())
			if !ok {
				http.Error(w, "user not authenticated", http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
