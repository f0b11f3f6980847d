package funding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/internal/petition"
	"endless-wallet/lending-backend/pkg/apperr"
)

// Coordinator sits between the external payment confirmation and the
// petition engine. It reserves lender funds, records the contribution and
// applies it to the petition in one transaction; any failure rolls the
// whole operation back.
type Coordinator struct {
	store     *ledger.Store
	repo      Repository
	petitions *petition.Service
	logger    *zap.Logger
}

func NewCoordinator(store *ledger.Store, repo Repository, petitions *petition.Service, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, repo: repo, petitions: petitions, logger: logger}
}

// Commit reserves amount from the lender's available balance and applies
// it to the petition. The payment provider has already confirmed funds are
// settled before this is invoked.
func (c *Coordinator) Commit(ctx context.Context, lenderID, petitionID uuid.UUID, amount float64) (*Contribution, error) {
	if amount <= 0 {
		return nil, apperr.InvalidTerms("contribution amount must be positive, got %.2f", amount)
	}
	amount = money.RoundCents(amount)

	lender, err := c.store.GetAccount(ctx, lenderID)
	if err != nil {
		return nil, err
	}
	if !lender.KYCVerified {
		return nil, apperr.InvalidState("lender account %s is not KYC verified", lenderID)
	}

	unlock := c.store.LockAggregate("petition:" + petitionID.String())
	defer unlock()
	unlockLender := c.store.LockAccounts(lenderID)
	defer unlockLender()

	var contribution *Contribution
	var funded *petition.Petition
	err = c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := c.store.ReserveTx(tx, lenderID, amount, "petition:"+petitionID.String()); err != nil {
			return err
		}

		contribution = &Contribution{
			PetitionID:      petitionID,
			LenderAccountID: lenderID,
			Amount:          amount,
			Status:          StatusReserved,
		}
		if err := c.repo.WithTx(tx).Create(ctx, contribution); err != nil {
			return err
		}

		funded, err = c.petitions.RecordContribution(ctx, tx, petitionID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The flip is announced only once the transaction has committed, so a
	// rollback never leaks a fully-funded event.
	if funded.Status == petition.StatusFullyFunded {
		c.petitions.NotifyFullyFunded(funded)
	}

	c.logger.Info("contribution committed",
		zap.String("contribution_id", contribution.ID.String()),
		zap.String("petition_id", petitionID.String()),
		zap.Float64("amount", amount))
	return contribution, nil
}

// Release returns a single reserved contribution's funds to its lender,
// used when a petition is cancelled or expires.
func (c *Coordinator) Release(ctx context.Context, contributionID uuid.UUID) (*Contribution, error) {
	current, err := c.repo.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}

	unlock := c.store.LockAggregate("petition:" + current.PetitionID.String())
	defer unlock()
	unlockLender := c.store.LockAccounts(current.LenderAccountID)
	defer unlockLender()

	var released *Contribution
	err = c.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		contribution, err := repo.GetByID(ctx, contributionID)
		if err != nil {
			return err
		}
		released, err = c.releaseOne(ctx, tx, repo, contribution)
		return err
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (c *Coordinator) releaseOne(ctx context.Context, tx *gorm.DB, repo Repository, contribution *Contribution) (*Contribution, error) {
	if contribution.Status != StatusReserved {
		return nil, apperr.InvalidState("contribution %s is %s and cannot be released",
			contribution.ID, contribution.Status)
	}
	ref := "petition:" + contribution.PetitionID.String()
	if err := c.store.ReleaseTx(tx, contribution.LenderAccountID, contribution.Amount, ref); err != nil {
		return nil, err
	}
	now := time.Now()
	contribution.Status = StatusReleased
	contribution.ReleasedAt = &now
	if err := repo.Update(ctx, contribution); err != nil {
		return nil, err
	}
	return contribution, nil
}

// ReservedAccounts returns the lender accounts with reserved contributions
// against the petition. The petition engine locks these before opening the
// transaction that commits or releases them.
func (c *Coordinator) ReservedAccounts(ctx context.Context, petitionID uuid.UUID) ([]uuid.UUID, error) {
	reserved := StatusReserved
	contributions, err := c.repo.ListByPetition(ctx, petitionID, &reserved)
	if err != nil {
		return nil, err
	}
	accounts := make([]uuid.UUID, 0, len(contributions))
	for i := range contributions {
		accounts = append(accounts, contributions[i].LenderAccountID)
	}
	return accounts, nil
}

func (c *Coordinator) GetContribution(ctx context.Context, id uuid.UUID) (*Contribution, error) {
	return c.repo.GetByID(ctx, id)
}

func (c *Coordinator) ListByPetition(ctx context.Context, petitionID uuid.UUID) ([]Contribution, error) {
	return c.repo.ListByPetition(ctx, petitionID, nil)
}

// CommitAll moves every reserved contribution of the petition to committed
// and disburses the summed amount to the borrower in the surrounding
// transaction. The returned owner is the contributor with the largest
// committed amount, ties broken by earliest commit.
func (c *Coordinator) CommitAll(ctx context.Context, tx *gorm.DB, p *petition.Petition) (float64, uuid.UUID, error) {
	repo := c.repo.WithTx(tx)
	reserved := StatusReserved
	contributions, err := repo.ListByPetition(ctx, p.ID, &reserved)
	if err != nil {
		return 0, uuid.Nil, err
	}
	if len(contributions) == 0 {
		return 0, uuid.Nil, apperr.Internal(nil, "petition %s has no reserved contributions to commit", p.ID)
	}

	ref := "petition:" + p.ID.String()
	now := time.Now()
	var total float64
	var owner uuid.UUID
	var ownerStake float64
	for i := range contributions {
		contribution := &contributions[i]
		if err := c.store.CommitReservedTx(tx, contribution.LenderAccountID, p.BorrowerAccountID, contribution.Amount, ref); err != nil {
			return 0, uuid.Nil, err
		}
		contribution.Status = StatusCommitted
		contribution.CommittedAt = &now
		if err := repo.Update(ctx, contribution); err != nil {
			return 0, uuid.Nil, err
		}
		total += contribution.Amount
		// List order is oldest first, so strict comparison keeps the
		// earliest contributor on ties.
		if contribution.Amount > ownerStake {
			ownerStake = contribution.Amount
			owner = contribution.LenderAccountID
		}
	}
	return money.RoundCents(total), owner, nil
}

// ReleaseAll returns every reserved contribution of the petition to its
// lender in the surrounding transaction.
func (c *Coordinator) ReleaseAll(ctx context.Context, tx *gorm.DB, p *petition.Petition) error {
	repo := c.repo.WithTx(tx)
	reserved := StatusReserved
	contributions, err := repo.ListByPetition(ctx, p.ID, &reserved)
	if err != nil {
		return err
	}
	for i := range contributions {
		if _, err := c.releaseOne(ctx, tx, repo, &contributions[i]); err != nil {
			return err
		}
	}
	return nil
}
