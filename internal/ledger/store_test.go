package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"endless-wallet/lending-backend/pkg/apperr"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Account{}, &Entry{}))
	return db
}

func newFundedAccount(t *testing.T, store *Store, name string, amount float64) *Account {
	t.Helper()
	account := &Account{Name: name, Email: name + "@endlesswallet.io", KYCVerified: true}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	if amount > 0 {
		require.NoError(t, store.Deposit(context.Background(), account.ID, amount, "seed"))
	}
	return account
}

func TestDepositAndReserve(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 1000)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		return store.ReserveTx(tx, account.ID, 400, "pet-1")
	})
	require.NoError(t, err)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 600.0, got.Available)
	assert.Equal(t, 400.0, got.Reserved)
	assert.Equal(t, 1000.0, got.TotalDeposited)
}

func TestReserveInsufficientFunds(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 100)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		return store.ReserveTx(tx, account.ID, 250, "pet-1")
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))

	// Rolled back, nothing moved.
	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Available)
	assert.Equal(t, 0.0, got.Reserved)
}

func TestReleaseRestoresAvailable(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 500)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := store.ReserveTx(tx, account.ID, 200, "pet-1"); err != nil {
			return err
		}
		return store.ReleaseTx(tx, account.ID, 200, "pet-1")
	})
	require.NoError(t, err)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.Available)
	assert.Equal(t, 0.0, got.Reserved)
}

func TestCommitReservedMovesFundsToBorrower(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	lender := newFundedAccount(t, store, "lender", 2000)
	borrower := newFundedAccount(t, store, "borrower", 0)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := store.ReserveTx(tx, lender.ID, 1500, "pet-1"); err != nil {
			return err
		}
		return store.CommitReservedTx(tx, lender.ID, borrower.ID, 1500, "pet-1")
	})
	require.NoError(t, err)

	gotLender, err := store.GetAccount(ctx, lender.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, gotLender.Available)
	assert.Equal(t, 0.0, gotLender.Reserved)
	assert.Equal(t, 500.0, gotLender.TotalDeposited)

	gotBorrower, err := store.GetAccount(ctx, borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, gotBorrower.Available)
}

func TestTransferIsAllOrNothing(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	buyer := newFundedAccount(t, store, "buyer", 300)
	seller := newFundedAccount(t, store, "seller", 0)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		return store.TransferTx(tx, buyer.ID, seller.ID, 900, "note-1")
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))

	gotBuyer, _ := store.GetAccount(ctx, buyer.ID)
	gotSeller, _ := store.GetAccount(ctx, seller.ID)
	assert.Equal(t, 300.0, gotBuyer.Available)
	assert.Equal(t, 0.0, gotSeller.Available)
}

func TestReleaseBeyondReservedIsInternal(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 500)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		return store.ReleaseTx(tx, account.ID, 50, "pet-1")
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInternal))
}

func TestAuditEntriesWritten(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 800)

	err := store.Transaction(ctx, func(tx *gorm.DB) error {
		return store.ReserveTx(tx, account.ID, 300, "pet-9")
	})
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	types := []EntryType{entries[0].Type, entries[1].Type}
	assert.Contains(t, types, EntryDeposit)
	assert.Contains(t, types, EntryReserve)
}

func TestConcurrentReservesSerializeOnAccount(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	account := newFundedAccount(t, store, "troy", 100)

	// Each caller holds the account lock across its whole transaction, as
	// the funding coordinator does, so the second reserve sees the first
	// one's committed balance instead of a stale read.
	reserve := func(ref string) error {
		unlock := store.LockAccounts(account.ID)
		defer unlock()
		return store.Transaction(ctx, func(tx *gorm.DB) error {
			return store.ReserveTx(tx, account.ID, 100, ref)
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ref := range []string{"pet-1", "pet-2"} {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			errs[i] = reserve(ref)
		}(i, ref)
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

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Available)
	assert.Equal(t, 100.0, got.Reserved)
}

func TestLockAccountsOrderIndependent(t *testing.T) {
	store := NewStore(newTestDB(t))
	a, b := uuid.New(), uuid.New()

	// Opposite acquisition orders over the same pair must not deadlock.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := store.LockAccounts(a, b)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := store.LockAccounts(b, a)
			unlock()
		}()
	}
	wg.Wait()
}
