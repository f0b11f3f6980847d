package loan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/pkg/apperr"
)

// Service handles post-conversion loan operations: repayments and reads.
type Service struct {
	repo   Repository
	store  *ledger.Store
	logger *zap.Logger
}

func NewService(repo Repository, store *ledger.Store, logger *zap.Logger) *Service {
	return &Service{repo: repo, store: store, logger: logger}
}

func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]ScheduledPayment, error) {
	if _, err := s.repo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.repo.GetSchedule(ctx, loanID)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Loan, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// RecordRepayment settles one scheduled payment: it transfers the
// installment amount from the borrower to the current economic owner, marks
// the installment paid and reduces the outstanding principal by the
// principal portion. Installments must be paid in sequence order.
func (s *Service) RecordRepayment(ctx context.Context, loanID uuid.UUID, sequence int) (*ScheduledPayment, error) {
	unlock := s.store.LockAggregate("loan:" + loanID.String())
	defer unlock()

	// The loan lock pins the economic owner (sales serialize on the same
	// key), so both parties can be locked before the transaction opens.
	current, err := s.repo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	unlockAccounts := s.store.LockAccounts(current.BorrowerAccountID, current.OwnerAccountID)
	defer unlockAccounts()

	var paid *ScheduledPayment
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		l, err := repo.GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		schedule, err := repo.GetSchedule(ctx, loanID)
		if err != nil {
			return err
		}

		var target *ScheduledPayment
		for i := range schedule {
			p := &schedule[i]
			if p.Paid {
				continue
			}
			if p.Sequence < sequence {
				return apperr.InvalidState("installment %d is still unpaid; payments settle in order", p.Sequence)
			}
			if p.Sequence == sequence {
				target = p
			}
			break
		}
		if target == nil {
			return apperr.InvalidState("installment %d of loan %s is not payable", sequence, loanID)
		}

		ref := "loan:" + loanID.String()
		if err := s.store.TransferTx(tx, l.BorrowerAccountID, l.OwnerAccountID, target.Amount, ref); err != nil {
			return err
		}

		periodRate := l.APR / 100 / 12 * float64(l.PeriodMonths())
		interest := money.RoundCents(l.OutstandingPrincipal * periodRate)
		principalPortion := target.Amount - interest
		if principalPortion < 0 {
			principalPortion = 0
		}
		l.OutstandingPrincipal = money.RoundCents(l.OutstandingPrincipal - principalPortion)
		if l.OutstandingPrincipal < 0 || target.Sequence == len(schedule) {
			l.OutstandingPrincipal = 0
		}
		if err := repo.Update(ctx, l); err != nil {
			return err
		}

		now := time.Now()
		target.Paid = true
		target.PaidAt = &now
		if err := repo.UpdatePayment(ctx, target); err != nil {
			return err
		}
		paid = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("repayment recorded",
		zap.String("loan_id", loanID.String()),
		zap.Int("sequence", sequence),
		zap.Float64("amount", paid.Amount))
	return paid, nil
}
