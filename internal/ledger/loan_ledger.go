package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RepaymentTypes are the transaction types counted towards a loan. Only the
// credit-wallet leg of a repayment transfer is listed, so each repayment is
// counted once.
var RepaymentTypes = []models.TransactionType{models.TypeLoanRepaymentReplenish}

// ComputeLoanLedger derives how much of a loan has been repaid and lays the
// paid amount over an evenly split schedule. It never writes.
func (e *Engine) ComputeLoanLedger(ctx context.Context, loanID string) (*models.LoanLedger, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ComputeLoanLedger")
	defer span.End()
	span.SetAttributes(attribute.String("loan_id", loanID))

	var (
		loan *models.Loan
		paid decimal.Decimal
	)
	err := e.uow.View(ctx, func(ctx context.Context, s repository.Stores) error {
		var err error
		if loan, err = s.Loans.GetByID(ctx, loanID); err != nil {
			return err
		}
		paid, err = s.Transactions.SumByReferenceAndTypes(ctx, loanID, RepaymentTypes)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loan ledger failed")
		return nil, err
	}

	outstanding := loan.Principal.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}

	return &models.LoanLedger{
		LoanID:             loan.ID,
		Status:             loan.Status,
		Principal:          loan.Principal,
		AmountPaid:         paid,
		OutstandingBalance: outstanding,
		FullyPaid:          paid.GreaterThanOrEqual(loan.Principal),
		Schedule:           buildSchedule(loan, paid, e.installments, e.now()),
	}, nil
}

// SettleLoanIfPaid marks a repayable loan as repaid once its repayments
// cover the principal. The boolean reports whether the status changed.
func (e *Engine) SettleLoanIfPaid(ctx context.Context, loanID string) (*models.Loan, bool, error) {
	var (
		loan    *models.Loan
		settled bool
	)
	err := e.Execute(ctx, func(ctx context.Context, u *Unit) error {
		settled = false
		var err error
		if loan, err = u.Loans.GetByIDForUpdate(ctx, loanID); err != nil {
			return err
		}
		if !loan.Status.Repayable() {
			return nil
		}
		paid, err := u.Transactions.SumByReferenceAndTypes(ctx, loanID, RepaymentTypes)
		if err != nil {
			return err
		}
		if paid.LessThan(loan.Principal) {
			return nil
		}
		if err := u.Loans.UpdateStatus(ctx, loanID, models.LoanRepaid); err != nil {
			return err
		}
		loan.Status = models.LoanRepaid
		settled = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if settled {
		slog.Info("loan repaid", "method", "SettleLoanIfPaid", "loan_id", loanID)
	}
	return loan, settled, nil
}

// buildSchedule splits the principal into n installments spread evenly from
// the loan's creation to its due date, or monthly when it has none. The
// last installment takes the rounding remainder.
func buildSchedule(loan *models.Loan, paid decimal.Decimal, n int, now time.Time) []models.Installment {
	if n < 1 {
		n = 1
	}
	per := loan.Principal.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	last := loan.Principal.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))

	span := loan.DueDate.Sub(loan.CreatedAt)
	remaining := paid
	schedule := make([]models.Installment, 0, n)
	for i := 1; i <= n; i++ {
		inst := models.Installment{Number: i, Amount: per}
		if i == n {
			inst.Amount = last
		}

		switch {
		case loan.DueDate.IsZero():
			inst.DueDate = loan.CreatedAt.AddDate(0, i, 0)
		case span <= 0 || i == n:
			inst.DueDate = loan.DueDate
		default:
			inst.DueDate = loan.CreatedAt.Add(span / time.Duration(n) * time.Duration(i))
		}

		inst.PaidAmount = decimal.Min(remaining, inst.Amount)
		remaining = remaining.Sub(inst.PaidAmount)

		switch {
		case inst.PaidAmount.Equal(inst.Amount):
			inst.Status = models.InstallmentPaid
		case now.After(inst.DueDate):
			inst.Status = models.InstallmentOverdue
		default:
			inst.Status = models.InstallmentUpcoming
		}
		schedule = append(schedule, inst)
	}
	return schedule
}
