package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GasTopup struct {
	ID          string          `json:"id"`
	ConsumerID  string          `json:"consumer_id"`
	MeterNumber string          `json:"meter_number"`
	Amount      decimal.Decimal `json:"amount"`
	Units       decimal.Decimal `json:"units"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GasReward is the accrued reward balance in gas units. It is not a ledger
// wallet and carries no currency.
type GasReward struct {
	ConsumerID string          `json:"consumer_id"`
	Units      decimal.Decimal `json:"units"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
