package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Loan struct {
	ID         string          `json:"id"`
	BorrowerID string          `json:"borrower_id"`
	Principal  decimal.Decimal `json:"principal"`
	Status     LoanStatus      `json:"status"`
	DueDate    time.Time       `json:"due_date"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanActive    LoanStatus = "active"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
	LoanRejected  LoanStatus = "rejected"
)

// Repayable reports whether repayments may still be taken against the loan.
func (s LoanStatus) Repayable() bool {
	return s == LoanApproved || s == LoanActive || s == LoanDefaulted
}

// LoanLedger is derived on read from the transaction log; nothing in it is
// stored.
type LoanLedger struct {
	LoanID             string          `json:"loan_id"`
	Status             LoanStatus      `json:"status"`
	Principal          decimal.Decimal `json:"principal"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	FullyPaid          bool            `json:"fully_paid"`
	Schedule           []Installment   `json:"schedule"`
}

type Installment struct {
	Number     int               `json:"number"`
	DueDate    time.Time         `json:"due_date"`
	Amount     decimal.Decimal   `json:"amount"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	Status     InstallmentStatus `json:"status"`
}

type InstallmentStatus string

const (
	InstallmentPaid     InstallmentStatus = "paid"
	InstallmentUpcoming InstallmentStatus = "upcoming"
	InstallmentOverdue  InstallmentStatus = "overdue"
)
