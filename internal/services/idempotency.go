package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
)

const requestTTL = 24 * time.Hour

// requestKey is scoped by owner so one client's ids never collide with
// another's.
func requestKey(ownerID, requestID string) string {
	return fmt.Sprintf("request:%s:%s", ownerID, requestID)
}

// claimRequest marks requestID as in flight for ownerID. The returned func releases the
// claim and must be called when the request fails, so a client may retry.
// An empty requestID claims nothing.
func claimRequest(ctx context.Context, redisClient redis.RedisClient, ownerID, requestID string) (func(), error) {
	if requestID == "" {
		return func() {}, nil
	}

	key := requestKey(ownerID, requestID)
	ok, err := redisClient.SetNX(ctx, key, "pending", requestTTL)
	if err != nil {
		slog.Error("failed to set request key", "owner_id", ownerID, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%w: failed to claim request", pkgerrors.ErrInternal)
	}
	if !ok {
		slog.Warn("request already processed", "owner_id", ownerID, "request_id", requestID)
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}

	return func() {
		if err := redisClient.Del(context.WithoutCancel(ctx), key); err != nil {
			slog.Error("failed to release request key", "request_id", requestID, "error", err)
		}
	}, nil
}
