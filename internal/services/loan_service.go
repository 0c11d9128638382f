package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const loanTracer = "loan-service"

// Repayment is the outcome of RepayLoan. The transfer is always committed.
// SettlementPending is set when the follow-up settlement could not run; Loan
// and Ledger are then nil and SettleLoan finishes the job later.
type Repayment struct {
	Transfer          ledger.TransferResult `json:"transfer"`
	Loan              *models.Loan          `json:"loan,omitempty"`
	Ledger            *models.LoanLedger    `json:"ledger,omitempty"`
	SettlementPending bool                  `json:"settlement_pending"`
}

type LoanService interface {
	RequestLoan(ctx context.Context, borrowerID string, principal decimal.Decimal, dueDate time.Time) (*models.Loan, error)
	ApproveLoan(ctx context.Context, loanID string) (*models.Loan, *ledger.Result, error)
	RejectLoan(ctx context.Context, loanID string) (*models.Loan, error)
	MarkDefaulted(ctx context.Context, loanID string) (*models.Loan, error)
	SettleLoan(ctx context.Context, loanID string) (*models.Loan, error)
	RepayLoan(ctx context.Context, borrowerID, loanID string, amount decimal.Decimal) (*Repayment, error)
	GetLoanLedger(ctx context.Context, callerID string, role models.Role, loanID string) (*models.LoanLedger, error)
	ListLoans(ctx context.Context, borrowerID string) ([]models.Loan, error)
}

type loanService struct {
	uow    repository.UnitOfWork
	engine *ledger.Engine
	now    func() time.Time
}

func NewLoanService(uow repository.UnitOfWork, engine *ledger.Engine) *loanService {
	return &loanService{uow: uow, engine: engine, now: time.Now}
}

func (s *loanService) RequestLoan(ctx context.Context, borrowerID string, principal decimal.Decimal, dueDate time.Time) (*models.Loan, error) {
	ctx, span := otel.Tracer(loanTracer).Start(ctx, "RequestLoan")
	defer span.End()

	if !principal.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	if !dueDate.IsZero() && !dueDate.After(s.now()) {
		return nil, fmt.Errorf("%w: due date must be in the future", pkgerrors.ErrInvalidInput)
	}

	loan := &models.Loan{
		ID:         uuid.NewString(),
		BorrowerID: borrowerID,
		Principal:  principal,
		Status:     models.LoanPending,
		DueDate:    dueDate,
	}
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		profile, err := u.Profiles.GetByID(ctx, borrowerID)
		if err != nil {
			return err
		}
		if profile.Role != models.RoleConsumer {
			return fmt.Errorf("%w: only consumers may borrow", pkgerrors.ErrForbidden)
		}
		return u.Loans.Create(ctx, loan)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loan request failed")
		slog.Error("failed to request loan", "borrower_id", borrowerID, "error", err)
		return nil, err
	}

	slog.Info("loan requested", "loan_id", loan.ID, "borrower_id", borrowerID, "principal", principal.String())
	return loan, nil
}

// ApproveLoan activates a pending loan and disburses its principal to the
// borrower's credit wallet in the same unit.
func (s *loanService) ApproveLoan(ctx context.Context, loanID string) (*models.Loan, *ledger.Result, error) {
	ctx, span := otel.Tracer(loanTracer).Start(ctx, "ApproveLoan")
	defer span.End()

	var (
		loan         *models.Loan
		disbursement *ledger.Result
	)
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		if loan, err = u.Loans.GetByIDForUpdate(ctx, loanID); err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return fmt.Errorf("%w: loan is %s", pkgerrors.ErrInvalidLoanState, loan.Status)
		}
		disbursement, err = s.engine.ApplyInUnit(ctx, u, ledger.Operation{
			Wallet:      ledger.ByOwner(loan.BorrowerID, models.WalletCredit),
			Amount:      loan.Principal,
			Type:        models.TypeLoanDisbursement,
			Description: "loan disbursement",
			Reference:   loan.ID,
		})
		if err != nil {
			return err
		}
		if err := u.Loans.UpdateStatus(ctx, loan.ID, models.LoanActive); err != nil {
			return err
		}
		loan.Status = models.LoanActive
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loan approval failed")
		slog.Error("failed to approve loan", "loan_id", loanID, "error", err)
		return nil, nil, err
	}

	slog.Info("loan approved", "loan_id", loanID, "borrower_id", loan.BorrowerID, "principal", loan.Principal.String())
	return loan, disbursement, nil
}

func (s *loanService) RejectLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, models.LoanRejected, models.LoanPending)
}

func (s *loanService) MarkDefaulted(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, models.LoanDefaulted, models.LoanApproved, models.LoanActive)
}

// SettleLoan marks a fully paid loan repaid. Loans still owing anything are
// returned unchanged.
func (s *loanService) SettleLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	loan, _, err := s.engine.SettleLoanIfPaid(ctx, loanID)
	if err != nil {
		slog.Error("failed to settle loan", "loan_id", loanID, "error", err)
		return nil, err
	}
	return loan, nil
}

func (s *loanService) transition(ctx context.Context, loanID string, to models.LoanStatus, from ...models.LoanStatus) (*models.Loan, error) {
	var loan *models.Loan
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		if loan, err = u.Loans.GetByIDForUpdate(ctx, loanID); err != nil {
			return err
		}
		allowed := false
		for _, st := range from {
			if loan.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: cannot move loan from %s to %s", pkgerrors.ErrInvalidLoanState, loan.Status, to)
		}
		if err := u.Loans.UpdateStatus(ctx, loanID, to); err != nil {
			return err
		}
		loan.Status = to
		return nil
	})
	if err != nil {
		slog.Error("failed to change loan status", "loan_id", loanID, "to", to, "error", err)
		return nil, err
	}
	slog.Info("loan status changed", "loan_id", loanID, "status", to)
	return loan, nil
}

// RepayLoan moves amount from the borrower's dashboard wallet to their
// credit wallet under the loan's reference, then settles the loan if it is
// now fully paid. The loan row stays locked while the outstanding balance
// is checked, so concurrent repayments cannot overpay.
func (s *loanService) RepayLoan(ctx context.Context, borrowerID, loanID string, amount decimal.Decimal) (*Repayment, error) {
	ctx, span := otel.Tracer(loanTracer).Start(ctx, "RepayLoan")
	defer span.End()

	if !amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	var transfer *ledger.TransferResult
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		loan, err := u.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.BorrowerID != borrowerID {
			return pkgerrors.ErrForbidden
		}
		if !loan.Status.Repayable() {
			return fmt.Errorf("%w: loan is %s", pkgerrors.ErrInvalidLoanState, loan.Status)
		}
		paid, err := u.Transactions.SumByReferenceAndTypes(ctx, loanID, ledger.RepaymentTypes)
		if err != nil {
			return err
		}
		if amount.GreaterThan(loan.Principal.Sub(paid)) {
			return pkgerrors.ErrRepaymentExceedsOutstanding
		}

		transfer, err = s.engine.TransferInUnit(ctx, u, ledger.TransferRequest{
			From:        ledger.ByOwner(borrowerID, models.WalletDashboard),
			To:          ledger.ByOwner(borrowerID, models.WalletCredit),
			Amount:      amount,
			DebitType:   models.TypeLoanRepayment,
			CreditType:  models.TypeLoanRepaymentReplenish,
			Description: "loan repayment",
			Reference:   loanID,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repayment failed")
		slog.Error("failed to repay loan", "loan_id", loanID, "borrower_id", borrowerID, "amount", amount.String(), "error", err)
		return nil, err
	}

	// The money has moved; from here on failures are reported in the result,
	// never as an error a client would retry.
	rep := &Repayment{Transfer: *transfer}
	loan, settled, err := s.engine.SettleLoanIfPaid(ctx, loanID)
	if err != nil {
		span.RecordError(err)
		slog.Error("repayment committed but settlement failed", "loan_id", loanID, "amount", amount.String(), "error", err)
		rep.SettlementPending = true
		return rep, nil
	}
	rep.Loan = loan

	ll, err := s.engine.ComputeLoanLedger(ctx, loanID)
	if err != nil {
		span.RecordError(err)
		slog.Error("repayment committed but loan ledger unavailable", "loan_id", loanID, "error", err)
		return rep, nil
	}
	rep.Ledger = ll

	slog.Info("loan repayment recorded", "loan_id", loanID, "amount", amount.String(),
		"outstanding", ll.OutstandingBalance.String(), "settled", settled)
	return rep, nil
}

func (s *loanService) GetLoanLedger(ctx context.Context, callerID string, role models.Role, loanID string) (*models.LoanLedger, error) {
	if role != models.RoleAdmin {
		var loan *models.Loan
		err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
			var err error
			loan, err = st.Loans.GetByID(ctx, loanID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if loan.BorrowerID != callerID {
			return nil, pkgerrors.ErrForbidden
		}
	}
	return s.engine.ComputeLoanLedger(ctx, loanID)
}

func (s *loanService) ListLoans(ctx context.Context, borrowerID string) ([]models.Loan, error) {
	var loans []models.Loan
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		loans, err = st.Loans.ListByBorrower(ctx, borrowerID)
		return err
	})
	return loans, err
}
