package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable ledger entry. Amount is signed: positive
// credits the wallet, negative debits it. Only Status may change after
// creation, and only from pending.
type Transaction struct {
	ID          string          `json:"id"`
	WalletID    string          `json:"wallet_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Status      StatusType      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TypeTopup                  TransactionType = "topup"
	TypeDebit                  TransactionType = "debit"
	TypeCredit                 TransactionType = "credit"
	TypePurchase               TransactionType = "purchase"
	TypeRefund                 TransactionType = "refund"
	TypeLoanDisbursement       TransactionType = "loan_disbursement"
	TypeLoanRepayment          TransactionType = "loan_repayment"
	TypeLoanRepaymentReplenish TransactionType = "loan_repayment_replenish"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeTopup, TypeDebit, TypeCredit, TypePurchase, TypeRefund,
		TypeLoanDisbursement, TypeLoanRepayment, TypeLoanRepaymentReplenish:
		return true
	}
	return false
}

type StatusType string

const (
	StatusPending   StatusType = "pending"
	StatusCompleted StatusType = "completed"
	StatusFailed    StatusType = "failed"
)

func (s StatusType) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}
