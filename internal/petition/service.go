package petition

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/pkg/apperr"
	"endless-wallet/lending-backend/pkg/workflows"
)

// Committer is implemented by the funding coordinator. Conversion and
// cancellation act on the petition's reserved contributions through it,
// always inside the petition's own transaction.
type Committer interface {
	// CommitAll moves every reserved contribution to committed, crediting
	// the borrower, and reports the summed amount and the account that
	// becomes the loan's economic owner.
	CommitAll(ctx context.Context, tx *gorm.DB, p *Petition) (total float64, owner uuid.UUID, err error)
	// ReleaseAll returns every reserved contribution to its lender.
	ReleaseAll(ctx context.Context, tx *gorm.DB, p *Petition) error
	// ReservedAccounts reports the lender accounts holding reserved
	// contributions against the petition, so the caller can lock them
	// before opening the transaction that settles them.
	ReservedAccounts(ctx context.Context, petitionID uuid.UUID) ([]uuid.UUID, error)
}

// Events receives lifecycle notifications. Implementations must not block.
type Events interface {
	PetitionFullyFunded(p *Petition)
}

// CreateRequest carries the borrower's terms for a new petition.
type CreateRequest struct {
	BorrowerAccountID uuid.UUID
	Principal         float64
	Currency          string
	APR               float64
	TermMonths        int
	ScheduleKind      string
	Purpose           string
	Description       string
	Secured           bool
	CollateralTypes   []string
	CosignerAccountID *uuid.UUID
	GoverningLaw      string
	AdditionalTerms   string
}

// Service owns the petition lifecycle from creation through funding to
// conversion into an active loan.
type Service struct {
	repo     Repository
	loans    loan.Repository
	store    *ledger.Store
	machine  *workflows.StateMachine
	logger   *zap.Logger
	events   Events
	commiter Committer

	supportedCurrencies map[string]bool
	petitionTTL         time.Duration
}

func NewService(repo Repository, loans loan.Repository, store *ledger.Store, logger *zap.Logger, currencies []string, ttl time.Duration) *Service {
	supported := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		supported[c] = true
	}
	return &Service{
		repo:                repo,
		loans:               loans,
		store:               store,
		machine:             workflows.ForPetitions(),
		logger:              logger,
		supportedCurrencies: supported,
		petitionTTL:         ttl,
	}
}

// SetCommitter wires the funding coordinator in after construction; the
// coordinator itself depends on this service.
func (s *Service) SetCommitter(c Committer) {
	s.commiter = c
}

func (s *Service) SetEvents(e Events) {
	s.events = e
}

func (s *Service) CreatePetition(ctx context.Context, req CreateRequest) (*Petition, error) {
	if req.Principal <= 0 {
		return nil, apperr.InvalidTerms("principal must be positive, got %.2f", req.Principal)
	}
	if req.TermMonths <= 0 {
		return nil, apperr.InvalidTerms("term must be positive, got %d months", req.TermMonths)
	}
	if req.APR < 0 {
		return nil, apperr.InvalidTerms("apr must not be negative, got %.4f", req.APR)
	}
	if !s.supportedCurrencies[req.Currency] {
		return nil, apperr.InvalidTerms("currency %q is not supported", req.Currency)
	}
	if req.Secured && len(req.CollateralTypes) == 0 {
		return nil, apperr.InvalidTerms("secured petitions must name at least one collateral type")
	}
	if !req.Secured && len(req.CollateralTypes) > 0 {
		return nil, apperr.InvalidTerms("unsecured petitions cannot carry collateral")
	}

	kind := money.ScheduleKind(req.ScheduleKind)
	if kind == "" {
		kind = money.ScheduleMonthly
	}
	// Reject unsupported kinds and indivisible quarterly terms upfront.
	if _, err := money.BuildSchedule(req.Principal, req.APR, req.TermMonths, kind, time.Now()); err != nil {
		return nil, err
	}

	borrower, err := s.store.GetAccount(ctx, req.BorrowerAccountID)
	if err != nil {
		return nil, err
	}
	if !borrower.KYCVerified {
		return nil, apperr.InvalidState("borrower account %s is not KYC verified", borrower.ID)
	}

	p := &Petition{
		BorrowerAccountID: req.BorrowerAccountID,
		Principal:         req.Principal,
		Currency:          req.Currency,
		APR:               req.APR,
		TermMonths:        req.TermMonths,
		ScheduleKind:      string(kind),
		Purpose:           req.Purpose,
		Description:       req.Description,
		Status:            StatusOpen,
		SecurityKind:      SecurityUnsecured,
		CosignKind:        CosignSolo,
		GoverningLaw:      req.GoverningLaw,
		AdditionalTerms:   req.AdditionalTerms,
		ExpiresAt:         time.Now().Add(s.petitionTTL),
	}
	if req.Secured {
		p.SecurityKind = SecuritySecured
		collateral, _ := json.Marshal(req.CollateralTypes)
		p.CollateralTypes = datatypes.JSON(collateral)
	}
	if req.CosignerAccountID != nil {
		if _, err := s.store.GetAccount(ctx, *req.CosignerAccountID); err != nil {
			return nil, err
		}
		p.CosignKind = CosignCosigned
		p.CosignerAccountID = req.CosignerAccountID
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("petition created",
		zap.String("petition_id", p.ID.String()),
		zap.Float64("principal", p.Principal),
		zap.String("currency", p.Currency))
	return p, nil
}

func (s *Service) GetPetition(ctx context.Context, id uuid.UUID) (*Petition, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListPetitions(ctx context.Context, status *Status) ([]Petition, error) {
	return s.repo.List(ctx, status)
}

// RecordContribution applies a funding amount to an open petition within
// tx. The caller (funding coordinator) has already reserved the lender's
// funds in the same transaction, so a failure here rolls everything back.
// Reaching the full principal flips the status to fully funded atomically
// with the increment.
func (s *Service) RecordContribution(ctx context.Context, tx *gorm.DB, petitionID uuid.UUID, amount float64) (*Petition, error) {
	amount = money.RoundCents(amount)
	if amount <= 0 {
		return nil, apperr.InvalidTerms("contribution amount must be at least one cent, got %.4f", amount)
	}

	repo := s.repo.WithTx(tx)
	p, err := repo.GetByID(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFullyFunded {
		return nil, apperr.OverfundAttempt("petition %s is fully funded at %.2f", p.ID, p.Principal)
	}
	if p.Status != StatusOpen {
		return nil, apperr.InvalidState("petition %s is %s, not open for funding", p.ID, p.Status)
	}
	if money.Cents(p.FundedAmount)+money.Cents(amount) > money.Cents(p.Principal) {
		return nil, apperr.OverfundAttempt("contribution of %.2f would exceed principal %.2f (funded %.2f)",
			amount, p.Principal, p.FundedAmount)
	}

	p.FundedAmount = money.RoundCents(p.FundedAmount + amount)
	if money.Cents(p.FundedAmount) == money.Cents(p.Principal) {
		p.FundedAmount = p.Principal
		p.Status = StatusFullyFunded
	}
	if err := repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NotifyFullyFunded emits the fully-funded event. The funding coordinator
// calls this after its transaction commits, so listeners never see a flip
// the database rolled back.
func (s *Service) NotifyFullyFunded(p *Petition) {
	if s.events != nil {
		s.events.PetitionFullyFunded(p)
	}
}

// CancelPetition releases all reserved contributions back to their lenders
// and transitions the petition to cancelled.
func (s *Service) CancelPetition(ctx context.Context, id uuid.UUID) (*Petition, error) {
	return s.closePetition(ctx, id, StatusCancelled)
}

// ExpirePetition is the scheduler's entry point for stale open petitions.
func (s *Service) ExpirePetition(ctx context.Context, id uuid.UUID) (*Petition, error) {
	return s.closePetition(ctx, id, StatusExpired)
}

// ExpireStale expires every open petition whose deadline has passed.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.repo.ListOpenExpiredBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range stale {
		if _, err := s.ExpirePetition(ctx, stale[i].ID); err != nil {
			// Lost the race with a funding or cancel call; skip it.
			s.logger.Warn("failed to expire petition",
				zap.String("petition_id", stale[i].ID.String()), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) closePetition(ctx context.Context, id uuid.UUID, terminal Status) (*Petition, error) {
	unlock := s.store.LockAggregate("petition:" + id.String())
	defer unlock()

	// The petition lock pins the set of reserved contributions, so the
	// lender accounts can be locked before the transaction opens.
	lenders, err := s.commiter.ReservedAccounts(ctx, id)
	if err != nil {
		return nil, err
	}
	unlockAccounts := s.store.LockAccounts(lenders...)
	defer unlockAccounts()

	var closed *Petition
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !s.machine.CanTransition(string(p.Status), string(terminal)) {
			return apperr.InvalidState("petition %s is %s and cannot become %s", p.ID, p.Status, terminal)
		}
		if err := s.commiter.ReleaseAll(ctx, tx, p); err != nil {
			return err
		}
		p.Status = terminal
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		closed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("petition closed",
		zap.String("petition_id", id.String()),
		zap.String("status", string(terminal)))
	return closed, nil
}

// ConvertToLoan commits all reserved contributions, disburses the principal
// to the borrower and produces the Loan with its generated schedule. The
// call is idempotent per petition id: a repeat observes the converted
// status and fails with AlreadyConverted instead of disbursing twice.
func (s *Service) ConvertToLoan(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	unlock := s.store.LockAggregate("petition:" + id.String())
	defer unlock()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lenders, err := s.commiter.ReservedAccounts(ctx, id)
	if err != nil {
		return nil, err
	}
	unlockAccounts := s.store.LockAccounts(append(lenders, current.BorrowerAccountID)...)
	defer unlockAccounts()

	var created *loan.Loan
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == StatusConverted {
			return apperr.AlreadyConverted("petition %s has already been converted", p.ID)
		}
		if p.Status != StatusFullyFunded {
			return apperr.InvalidState("petition %s is %s; only fully funded petitions convert", p.ID, p.Status)
		}

		total, owner, err := s.commiter.CommitAll(ctx, tx, p)
		if err != nil {
			return err
		}
		if money.Cents(total) != money.Cents(p.Principal) {
			return apperr.Internal(nil, "committed %.2f does not match principal %.2f for petition %s",
				total, p.Principal, p.ID)
		}

		startedAt := time.Now()
		installments, err := money.BuildSchedule(p.Principal, p.APR, p.TermMonths, money.ScheduleKind(p.ScheduleKind), startedAt)
		if err != nil {
			return err
		}

		l := &loan.Loan{
			PetitionID:           p.ID,
			BorrowerAccountID:    p.BorrowerAccountID,
			OwnerAccountID:       owner,
			Principal:            p.Principal,
			OutstandingPrincipal: p.Principal,
			APR:                  p.APR,
			TermMonths:           p.TermMonths,
			ScheduleKind:         p.ScheduleKind,
			Currency:             p.Currency,
			Purpose:              p.Purpose,
			GoverningLaw:         p.GoverningLaw,
			StartedAt:            startedAt,
		}
		schedule := make([]loan.ScheduledPayment, 0, len(installments))
		for _, inst := range installments {
			schedule = append(schedule, loan.ScheduledPayment{
				Sequence: inst.Sequence,
				Amount:   inst.Amount,
				DueDate:  inst.DueDate,
			})
		}
		if err := s.loans.WithTx(tx).Create(ctx, l, schedule); err != nil {
			return err
		}

		p.Status = StatusConverted
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("petition converted to loan",
		zap.String("petition_id", id.String()),
		zap.String("loan_id", created.ID.String()),
		zap.String("owner_account_id", created.OwnerAccountID.String()))
	return created, nil
}
