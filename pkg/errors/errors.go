package errors

import (
	"errors"
)

var (
	// Ledger taxonomy.
	ErrWalletResolutionFailed = errors.New("wallet resolution failed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrStorageConflict        = errors.New("storage conflict")
	ErrStorageUnavailable     = errors.New("storage unavailable")

	ErrWalletNotFound              = errors.New("wallet not found")
	ErrInvalidWalletKind           = errors.New("invalid wallet kind")
	ErrNilTransaction              = errors.New("transaction is nil")
	ErrInvalidTransactionType      = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus    = errors.New("invalid transaction status")
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrInvalidTransactionState     = errors.New("transaction is not pending")
	ErrLoanNotFound                = errors.New("loan not found")
	ErrInvalidLoanState            = errors.New("invalid loan state")
	ErrRepaymentExceedsOutstanding = errors.New("repayment exceeds outstanding balance")
	ErrProductNotFound             = errors.New("product not found")
	ErrOrderNotFound               = errors.New("order not found")
	ErrInsufficientRewards         = errors.New("insufficient reward units")
	ErrProfileNotFound             = errors.New("profile not found")
	ErrRequestAlreadyProcessed     = errors.New("request already processed")
	ErrInvalidCredentials          = errors.New("invalid credentials")
	ErrUsernameExists              = errors.New("username already exists")
	ErrForbidden                   = errors.New("forbidden")
	ErrInvalidInput                = errors.New("invalid input")
	ErrInternal                    = errors.New("internal error")
)

// IsRetryable reports whether the failed unit may be run again as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageConflict)
}
