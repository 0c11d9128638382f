package models

import "time"

// Profile is the account behind an owner id. Wallets resolve only for
// owners that have a profile.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Role string

const (
	RoleConsumer   Role = "consumer"
	RoleRetailer   Role = "retailer"
	RoleWholesaler Role = "wholesaler"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleConsumer, RoleRetailer, RoleWholesaler, RoleAdmin:
		return true
	}
	return false
}

// OwnsWallets reports whether profiles of this role hold ledger wallets.
func (r Role) OwnsWallets() bool {
	return r == RoleConsumer || r == RoleRetailer
}
