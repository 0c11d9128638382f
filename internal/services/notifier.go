package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
)

// BalanceKey is the Redis key caching one wallet's balance.
func BalanceKey(ownerID string, kind models.WalletKind) string {
	return fmt.Sprintf("wallet:%s:%s:balance", ownerID, kind)
}

type LedgerEvent struct {
	EventType   string             `json:"event_type"`
	OwnerID     string             `json:"owner_id"`
	WalletKind  models.WalletKind  `json:"wallet_kind"`
	Balance     string             `json:"balance"`
	Transaction models.Transaction `json:"transaction"`
	PublishedAt string             `json:"published_at"`
}

// LedgerNotifier caches the committed balance of every touched wallet and
// publishes each committed entry to Kafka.
type LedgerNotifier struct {
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	balanceTTL  time.Duration
}

var _ ledger.Notifier = (*LedgerNotifier)(nil)

func NewLedgerNotifier(redisClient redis.RedisClient, producer kafka.KafkaProducer, balanceTTL time.Duration) *LedgerNotifier {
	return &LedgerNotifier{redisClient: redisClient, producer: producer, balanceTTL: balanceTTL}
}

func (n *LedgerNotifier) Notify(ctx context.Context, entries []ledger.Result) error {
	var errs []error

	// Entries are in commit order, so the last one per wallet holds its
	// final balance.
	latest := make(map[string]string, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		key := BalanceKey(e.Wallet.OwnerID, e.Wallet.Kind)
		if _, ok := latest[key]; !ok {
			keys = append(keys, key)
		}
		latest[key] = e.Wallet.Balance.String()
	}
	for _, key := range keys {
		if err := n.redisClient.Set(ctx, key, latest[key], n.balanceTTL); err != nil {
			errs = append(errs, fmt.Errorf("failed to cache balance %s: %w", key, err))
		}
	}

	for _, e := range entries {
		event := LedgerEvent{
			EventType:   "ledger_transaction",
			OwnerID:     e.Wallet.OwnerID,
			WalletKind:  e.Wallet.Kind,
			Balance:     e.Wallet.Balance.String(),
			Transaction: e.Transaction,
			PublishedAt: time.Now().UTC().Format(time.RFC3339),
		}
		eventBytes, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal ledger event: %w", err))
			continue
		}
		if err := n.producer.Send(ctx, kafka.TopicLedgerTransactions, e.Wallet.ID, eventBytes); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish transaction %s: %w", e.Transaction.ID, err))
			continue
		}
		slog.Debug("ledger event published", "transaction_id", e.Transaction.ID, "wallet_id", e.Wallet.ID)
	}

	return stderrors.Join(errs...)
}
