package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/lightlabcreation/big-pos-backend/internal/api"
	"github.com/lightlabcreation/big-pos-backend/internal/config"
	"github.com/lightlabcreation/big-pos-backend/internal/handler"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/auth"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/observability"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/postgres"
	service "github.com/lightlabcreation/big-pos-backend/internal/services"
)

const serviceName = "big-pos-backend"

func main() {
	cfg := config.Load()

	shutdownTracing := observability.Setup(serviceName, cfg)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	uow := postgres.NewUnitOfWork(db)
	engine := ledger.New(uow,
		ledger.WithNotifier(service.NewLedgerNotifier(redisClient, producer, cfg.Ledger.BalanceCacheTTL)),
		ledger.WithMaxAttempts(cfg.Ledger.MaxAttempts),
		ledger.WithCurrency(cfg.Ledger.DefaultCurrency),
		ledger.WithInstallments(cfg.Ledger.LoanInstallments),
	)
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	gasSvc := service.NewGasService(uow, engine, producer, cfg.Ledger)
	h := handler.NewHandler(
		service.NewAuthService(uow, engine, redisClient, tokens),
		service.NewWalletService(uow, engine, redisClient, cfg.Ledger),
		service.NewOrderService(uow, engine, redisClient),
		gasSvc,
		service.NewLoanService(uow, engine),
	)

	rewardConsumer := kafka.NewConsumer(cfg.KafkaBrokers, kafka.TopicRewardAccruals, serviceName+"-rewards",
		gasSvc.HandleRewardAccrual, kafka.WithRequeue(producer))
	defer rewardConsumer.Close()
	go func() {
		if err := rewardConsumer.Consume(ctx); err != nil {
			slog.Error("reward consumer stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(h, redisClient, tokens),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
