package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr     string
	MetricsAddr  string
	OTLPEndpoint string
	LogLevel     string
	AppEnv       string

	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string
	TokenTTL     time.Duration

	// Bootstrap admin created by the migrator when both are set.
	AdminUsername string
	AdminPassword string

	Ledger LedgerConfig
}

// LedgerConfig holds the knobs of the ledger engine and its callers.
type LedgerConfig struct {
	MaxAttempts      int
	DefaultCurrency  string
	LoanInstallments int
	BalanceCacheTTL  time.Duration
	GasUnitPrice     decimal.Decimal
	RewardRate       decimal.Decimal
	RewardUnitValue  decimal.Decimal
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:     valueOrDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		LogLevel:     valueOrDefault("LOG_LEVEL", "info"),
		AppEnv:       valueOrDefault("APP_ENV", "PROD"),
		PostgresDSN:  valueOrDefault("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=bigcompany sslmode=disable"),
		RedisAddr:    valueOrDefault("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: splitList(valueOrDefault("KAFKA_BROKER", "localhost:9092")),
		JWTSecret:    valueOrDefault("JWT_SECRET", "supersecret"),
		TokenTTL:     durationOrDefault("TOKEN_TTL", time.Hour),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		Ledger: LedgerConfig{
			MaxAttempts:      intOrDefault("LEDGER_MAX_ATTEMPTS", 3),
			DefaultCurrency:  valueOrDefault("DEFAULT_CURRENCY", "RWF"),
			LoanInstallments: intOrDefault("LOAN_INSTALLMENTS", 4),
			BalanceCacheTTL:  durationOrDefault("BALANCE_CACHE_TTL", 5*time.Minute),
			GasUnitPrice:     decimalOrDefault("GAS_UNIT_PRICE", decimal.NewFromInt(100)),
			RewardRate:       decimalOrDefault("GAS_REWARD_RATE", decimal.RequireFromString("0.10")),
			RewardUnitValue:  decimalOrDefault("REWARD_UNIT_VALUE", decimal.NewFromInt(100)),
		},
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"ledger_max_attempts", cfg.Ledger.MaxAttempts,
		"currency", cfg.Ledger.DefaultCurrency)
	return cfg
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func decimalOrDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		slog.Warn("invalid decimal in environment, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}
