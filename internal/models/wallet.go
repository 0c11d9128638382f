package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a balance pool owned by one consumer or retailer. There is at
// most one wallet per (OwnerID, Kind).
type Wallet struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Kind      WalletKind      `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type WalletKind string

const (
	WalletDashboard WalletKind = "dashboard"
	WalletCredit    WalletKind = "credit"
	WalletPOS       WalletKind = "pos"
)

func (k WalletKind) Valid() bool {
	return k == WalletDashboard || k == WalletCredit || k == WalletPOS
}
