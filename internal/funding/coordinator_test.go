package funding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/petition"
	"endless-wallet/lending-backend/pkg/apperr"
)

type testStack struct {
	store       *ledger.Store
	petitions   *petition.Service
	coordinator *Coordinator
	loans       loan.Repository
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&ledger.Account{}, &ledger.Entry{},
		&petition.Petition{}, &Contribution{},
		&loan.Loan{}, &loan.ScheduledPayment{},
	))

	store := ledger.NewStore(db)
	loanRepo := loan.NewRepository(db)
	petitionSvc := petition.NewService(petition.NewRepository(db), loanRepo, store,
		zap.NewNop(), []string{"USD", "EUR"}, 30*24*time.Hour)
	coordinator := NewCoordinator(store, NewRepository(db), petitionSvc, zap.NewNop())
	petitionSvc.SetCommitter(coordinator)

	return &testStack{
		store:       store,
		petitions:   petitionSvc,
		coordinator: coordinator,
		loans:       loanRepo,
	}
}

func (s *testStack) account(t *testing.T, name string, amount float64) *ledger.Account {
	t.Helper()
	account := &ledger.Account{Name: name, Email: name + "@endlesswallet.io", KYCVerified: true}
	require.NoError(t, s.store.CreateAccount(context.Background(), account))
	if amount > 0 {
		require.NoError(t, s.store.Deposit(context.Background(), account.ID, amount, "seed"))
	}
	return account
}

func (s *testStack) openPetition(t *testing.T, borrower *ledger.Account, principal float64) *petition.Petition {
	t.Helper()
	p, err := s.petitions.CreatePetition(context.Background(), petition.CreateRequest{
		BorrowerAccountID: borrower.ID,
		Principal:         principal,
		Currency:          "USD",
		APR:               7.5,
		TermMonths:        12,
		Purpose:           "equipment",
	})
	require.NoError(t, err)
	return p
}

func TestCommitReservesAndRecords(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 2000)
	p := s.openPetition(t, borrower, 3000)

	contribution, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, contribution.Status)

	got, err := s.store.GetAccount(ctx, lender.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.Available)
	assert.Equal(t, 1500.0, got.Reserved)

	updated, err := s.petitions.GetPetition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, updated.FundedAmount)
	assert.Equal(t, petition.StatusOpen, updated.Status)
}

func TestCommitFlipsToFullyFunded(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	alice := s.account(t, "alice", 2000)
	bob := s.account(t, "bob", 2000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, alice.ID, p.ID, 1500)
	require.NoError(t, err)
	_, err = s.coordinator.Commit(ctx, bob.ID, p.ID, 1500)
	require.NoError(t, err)

	updated, err := s.petitions.GetPetition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, petition.StatusFullyFunded, updated.Status)
	assert.Equal(t, 3000.0, updated.FundedAmount)

	// A full book accepts no further contributions.
	_, err = s.coordinator.Commit(ctx, alice.ID, p.ID, 100)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeOverfundAttempt))
}

func TestOverfundRollsBackReservation(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 5000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 2000)
	require.NoError(t, err)

	_, err = s.coordinator.Commit(ctx, lender.ID, p.ID, 1500)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeOverfundAttempt))

	// The rejected contribution left no trace: no reservation, no funding.
	got, err := s.store.GetAccount(ctx, lender.ID)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, got.Available)
	assert.Equal(t, 2000.0, got.Reserved)

	updated, err := s.petitions.GetPetition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, updated.FundedAmount)
	assert.Equal(t, petition.StatusOpen, updated.Status)
}

func TestCommitRejectsUnverifiedLender(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := &ledger.Account{Name: "shadow", Email: "shadow@endlesswallet.io"}
	require.NoError(t, s.store.CreateAccount(ctx, lender))
	require.NoError(t, s.store.Deposit(ctx, lender.ID, 1000, "seed"))
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 500)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestCancelReleasesAllLenders(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	alice := s.account(t, "alice", 1000)
	bob := s.account(t, "bob", 1000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, alice.ID, p.ID, 700)
	require.NoError(t, err)
	_, err = s.coordinator.Commit(ctx, bob.ID, p.ID, 300)
	require.NoError(t, err)

	cancelled, err := s.petitions.CancelPetition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, petition.StatusCancelled, cancelled.Status)

	for _, lender := range []*ledger.Account{alice, bob} {
		got, err := s.store.GetAccount(ctx, lender.ID)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, got.Available)
		assert.Equal(t, 0.0, got.Reserved)
	}

	contributions, err := s.coordinator.ListByPetition(ctx, p.ID)
	require.NoError(t, err)
	for _, c := range contributions {
		assert.Equal(t, StatusReleased, c.Status)
	}
}

func TestConvertDisbursesAndPicksLargestOwner(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	alice := s.account(t, "alice", 2000)
	bob := s.account(t, "bob", 2000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, alice.ID, p.ID, 1000)
	require.NoError(t, err)
	_, err = s.coordinator.Commit(ctx, bob.ID, p.ID, 2000)
	require.NoError(t, err)

	l, err := s.petitions.ConvertToLoan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, l.OwnerAccountID)
	assert.Equal(t, 3000.0, l.Principal)
	assert.Equal(t, 3000.0, l.OutstandingPrincipal)

	got, err := s.store.GetAccount(ctx, borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, got.Available)

	// Lenders' reservations are consumed, not returned.
	gotAlice, err := s.store.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, gotAlice.Available)
	assert.Equal(t, 0.0, gotAlice.Reserved)

	schedule, err := s.loans.GetSchedule(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, schedule, 12)
}

func TestConvertTieKeepsEarliestContributor(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	alice := s.account(t, "alice", 2000)
	bob := s.account(t, "bob", 2000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, alice.ID, p.ID, 1500)
	require.NoError(t, err)
	_, err = s.coordinator.Commit(ctx, bob.ID, p.ID, 1500)
	require.NoError(t, err)

	l, err := s.petitions.ConvertToLoan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, l.OwnerAccountID)
}

func TestConvertTwiceFails(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 5000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 3000)
	require.NoError(t, err)

	_, err = s.petitions.ConvertToLoan(ctx, p.ID)
	require.NoError(t, err)

	_, err = s.petitions.ConvertToLoan(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyConverted))

	// No double disbursement.
	got, err := s.store.GetAccount(ctx, borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, got.Available)
}

// lenderEvents counts fully-funded notifications for assertions.
type lenderEvents struct {
	mu    sync.Mutex
	fired []*petition.Petition
}

func (e *lenderEvents) PetitionFullyFunded(p *petition.Petition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired = append(e.fired, p)
}

func TestConcurrentCommitsShareOneDeposit(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 1000)
	first := s.openPetition(t, borrower, 1000)
	second := s.openPetition(t, borrower, 1000)

	// Both commits target the lender's only deposit through different
	// petitions, so neither petition's lock covers the other. The account
	// lock must keep the deposit from backing both.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []*petition.Petition{first, second} {
		wg.Add(1)
		go func(i int, target *petition.Petition) {
			defer wg.Done()
			_, errs[i] = s.coordinator.Commit(ctx, lender.ID, target.ID, 1000)
		}(i, target)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))
		}
	}
	assert.Equal(t, 1, winners)

	got, err := s.store.GetAccount(ctx, lender.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Available)
	assert.Equal(t, 1000.0, got.Reserved)
}

func TestFullyFundedEventFiresAfterCommit(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	events := &lenderEvents{}
	s.petitions.SetEvents(events)

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 5000)
	p := s.openPetition(t, borrower, 3000)

	_, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 2000)
	require.NoError(t, err)
	assert.Empty(t, events.fired)

	_, err = s.coordinator.Commit(ctx, lender.ID, p.ID, 1000)
	require.NoError(t, err)
	require.Len(t, events.fired, 1)
	assert.Equal(t, p.ID, events.fired[0].ID)
	assert.Equal(t, petition.StatusFullyFunded, events.fired[0].Status)
}

func TestReleaseSingleContribution(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	borrower := s.account(t, "maya", 0)
	lender := s.account(t, "omar", 1000)
	p := s.openPetition(t, borrower, 3000)

	contribution, err := s.coordinator.Commit(ctx, lender.ID, p.ID, 400)
	require.NoError(t, err)

	released, err := s.coordinator.Release(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)

	got, err := s.store.GetAccount(ctx, lender.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.Available)
	assert.Equal(t, 0.0, got.Reserved)

	// A released contribution cannot be released again.
	_, err = s.coordinator.Release(ctx, contribution.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}
