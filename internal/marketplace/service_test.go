package marketplace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/pkg/apperr"
)

type marketFixture struct {
	store    *ledger.Store
	loans    loan.Repository
	service  *Service
	borrower *ledger.Account
	seller   *ledger.Account
	loan     *loan.Loan
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&ledger.Account{}, &ledger.Entry{},
		&loan.Loan{}, &loan.ScheduledPayment{},
		&Listing{},
	))

	store := ledger.NewStore(db)
	loanRepo := loan.NewRepository(db)
	service := NewService(NewRepository(db), loanRepo, store, zap.NewNop(), 0)

	ctx := context.Background()
	borrower := &ledger.Account{Name: "maya", Email: "maya@endlesswallet.io", KYCVerified: true}
	require.NoError(t, store.CreateAccount(ctx, borrower))
	seller := &ledger.Account{Name: "omar", Email: "omar@endlesswallet.io", KYCVerified: true}
	require.NoError(t, store.CreateAccount(ctx, seller))

	startedAt := time.Now()
	installments, err := money.BuildSchedule(5000, 7.5, 12, money.ScheduleMonthly, startedAt)
	require.NoError(t, err)

	l := &loan.Loan{
		PetitionID:           uuid.New(),
		BorrowerAccountID:    borrower.ID,
		OwnerAccountID:       seller.ID,
		Principal:            5000,
		OutstandingPrincipal: 5000,
		APR:                  7.5,
		TermMonths:           12,
		ScheduleKind:         string(money.ScheduleMonthly),
		Currency:             "USD",
		Purpose:              "equipment",
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
	require.NoError(t, loanRepo.Create(ctx, l, schedule))

	return &marketFixture{
		store:    store,
		loans:    loanRepo,
		service:  service,
		borrower: borrower,
		seller:   seller,
		loan:     l,
	}
}

func (f *marketFixture) buyer(t *testing.T, name string, amount float64) *ledger.Account {
	t.Helper()
	account := &ledger.Account{Name: name, Email: name + "@endlesswallet.io", KYCVerified: true}
	require.NoError(t, f.store.CreateAccount(context.Background(), account))
	require.NoError(t, f.store.Deposit(context.Background(), account.ID, amount, "seed"))
	return account
}

func TestListNote(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)
	assert.Equal(t, StatusListed, listing.Status)
	assert.Equal(t, 4730.0, listing.AskingPrice)
}

func TestListNoteValidation(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	_, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 0, KindFull)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidPrice))

	_, err = f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, ListingKind("fractional"))
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidPrice))

	stranger := f.buyer(t, "eve", 100)
	_, err = f.service.ListNote(ctx, f.loan.ID, stranger.ID, 4730, KindFull)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotOwner))
}

func TestListNoteTwiceFails(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	_, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	_, err = f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4800, KindFull)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyListed))
}

func TestPurchaseSettlesAndReassignsOwner(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	buyer := f.buyer(t, "nina", 5000)
	sold, err := f.service.PurchaseNote(ctx, listing.ID, buyer.ID, 4730)
	require.NoError(t, err)
	assert.Equal(t, StatusSold, sold.Status)
	require.NotNil(t, sold.SalePrice)
	assert.Equal(t, 4730.0, *sold.SalePrice)
	require.NotNil(t, sold.BuyerAccountID)
	assert.Equal(t, buyer.ID, *sold.BuyerAccountID)

	gotBuyer, err := f.store.GetAccount(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 270.0, gotBuyer.Available)

	gotSeller, err := f.store.GetAccount(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 4730.0, gotSeller.Available)

	l, err := f.loans.GetByID(ctx, f.loan.ID)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, l.OwnerAccountID)
}

func TestPurchaseBelowAskFails(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	buyer := f.buyer(t, "nina", 5000)
	_, err = f.service.PurchaseNote(ctx, listing.ID, buyer.ID, 4000)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidPrice))

	// Nothing settled.
	got, err := f.store.GetAccount(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, got.Available)
}

func TestPurchaseOwnListingFails(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	require.NoError(t, f.store.Deposit(ctx, f.seller.ID, 5000, "seed"))
	_, err = f.service.PurchaseNote(ctx, listing.ID, f.seller.ID, 4730)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestPurchaseInsufficientFundsRollsBack(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	broke := f.buyer(t, "pat", 100)
	_, err = f.service.PurchaseNote(ctx, listing.ID, broke.ID, 4730)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))

	// Listing stays active and the owner is unchanged.
	got, err := f.service.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusListed, got.Status)

	l, err := f.loans.GetByID(ctx, f.loan.ID)
	require.NoError(t, err)
	assert.Equal(t, f.seller.ID, l.OwnerAccountID)
}

func TestConcurrentPurchaseOneWinner(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	first := f.buyer(t, "nina", 5000)
	second := f.buyer(t, "theo", 5000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []*ledger.Account{first, second} {
		wg.Add(1)
		go func(i int, buyerID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.service.PurchaseNote(ctx, listing.ID, buyerID, 4730)
		}(i, buyer.ID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperr.IsCode(err, apperr.CodeListingNotActive))
		}
	}
	assert.Equal(t, 1, winners)

	// Exactly one payment settled.
	gotSeller, err := f.store.GetAccount(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 4730.0, gotSeller.Available)
}

func TestWithdrawListing(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	listing, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	stranger := f.buyer(t, "eve", 100)
	_, err = f.service.WithdrawListing(ctx, listing.ID, stranger.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotOwner))

	withdrawn, err := f.service.WithdrawListing(ctx, listing.ID, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.WithdrawnAt)

	// A withdrawn listing cannot be bought or withdrawn again.
	buyer := f.buyer(t, "nina", 5000)
	_, err = f.service.PurchaseNote(ctx, listing.ID, buyer.ID, 4730)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeListingNotActive))

	_, err = f.service.WithdrawListing(ctx, listing.ID, f.seller.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeListingNotActive))

	// The loan can be relisted after withdrawal.
	relisted, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4800, KindFull)
	require.NoError(t, err)
	assert.Equal(t, StatusListed, relisted.Status)
}

func TestBrowseNotesProjection(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	_, err := f.service.ListNote(ctx, f.loan.ID, f.seller.ID, 4730, KindFull)
	require.NoError(t, err)

	notes, err := f.service.BrowseNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	note := notes[0]
	assert.Equal(t, 5000.0, note.OriginalAmount)
	assert.Equal(t, 5000.0, note.RemainingBalance)
	assert.Equal(t, 7.5, note.APR)
	assert.Equal(t, 12, note.TermRemainingMonths)
	assert.Equal(t, 0.0, note.ProgressPercentage)
	// Asking 4730 against a 5000 balance is a 5.4% discount.
	assert.InDelta(t, 5.4, note.DiscountPercentage, 0.01)
	// Buying 5000 of balance for 4730 over one year yields 270/4730.
	assert.InDelta(t, 5.71, note.YieldToMaturity, 0.01)

	// Sold listings leave the shelf.
	buyer := f.buyer(t, "nina", 5000)
	listingID := note.Listing.ID
	_, err = f.service.PurchaseNote(ctx, listingID, buyer.ID, 4730)
	require.NoError(t, err)

	notes, err = f.service.BrowseNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
