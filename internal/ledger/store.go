package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/pkg/apperr"
)

// Store owns Account records and is the only component that mutates
// balances. Every mutation runs inside a database transaction and writes an
// audit Entry; balance invariants are re-checked before commit so a partial
// application is never observable.
type Store struct {
	db    *gorm.DB
	locks *keyedMutex
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, locks: newKeyedMutex()}
}

// LockAggregate serializes callers on an aggregate id (petition, loan or
// listing). The returned function releases the lock.
func (s *Store) LockAggregate(id string) func() {
	return s.locks.Lock(id)
}

// LockAccounts serializes balance mutations on the given accounts. Every
// caller that mutates balances inside a transaction must hold the locks for
// all accounts it touches until that transaction commits; otherwise two
// transactions on disjoint aggregates can read the same balance and
// reserve it twice. Locks are acquired in sorted id order, after any
// aggregate lock the caller already holds.
func (s *Store) LockAccounts(ids ...uuid.UUID) func() {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "account:"+id.String())
	}
	return s.locks.LockMany(keys...)
}

// Transaction runs fn atomically. Engines compose multi-entity mutations
// (balance moves plus their own state changes) through this.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	if account.Name == "" || account.Email == "" {
		return apperr.InvalidTerms("account name and email are required")
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return apperr.Internal(err, "failed to create account")
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return getAccount(s.db.WithContext(ctx), id)
}

// Deposit credits external settled funds to an account. The payment
// provider has already confirmed the transfer before this is called.
func (s *Store) Deposit(ctx context.Context, accountID uuid.UUID, amount float64, reference string) error {
	if amount <= 0 {
		return apperr.InvalidTerms("deposit amount must be positive, got %.2f", amount)
	}
	unlock := s.LockAccounts(accountID)
	defer unlock()
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		account, err := getAccount(tx, accountID)
		if err != nil {
			return err
		}
		account.Available = money.RoundCents(account.Available + amount)
		account.TotalDeposited = money.RoundCents(account.TotalDeposited + amount)
		return s.saveWithEntry(tx, account, EntryDeposit, amount, reference, "external deposit settled")
	})
}

// ReserveTx moves amount from available to reserved within tx.
func (s *Store) ReserveTx(tx *gorm.DB, accountID uuid.UUID, amount float64, reference string) error {
	account, err := getAccount(tx, accountID)
	if err != nil {
		return err
	}
	if account.Available < amount {
		return apperr.InsufficientFunds("available balance %.2f is less than %.2f", account.Available, amount)
	}
	account.Available = money.RoundCents(account.Available - amount)
	account.Reserved = money.RoundCents(account.Reserved + amount)
	return s.saveWithEntry(tx, account, EntryReserve, amount, reference, "funds reserved for contribution")
}

// ReleaseTx returns amount from reserved back to available within tx.
func (s *Store) ReleaseTx(tx *gorm.DB, accountID uuid.UUID, amount float64, reference string) error {
	account, err := getAccount(tx, accountID)
	if err != nil {
		return err
	}
	if account.Reserved < amount {
		return apperr.Internal(nil, "release of %.2f exceeds reserved balance %.2f on account %s", amount, account.Reserved, accountID)
	}
	account.Reserved = money.RoundCents(account.Reserved - amount)
	account.Available = money.RoundCents(account.Available + amount)
	return s.saveWithEntry(tx, account, EntryRelease, amount, reference, "reserved funds released")
}

// CommitReservedTx consumes reserved funds from one account and credits
// another's available balance, both within tx.
func (s *Store) CommitReservedTx(tx *gorm.DB, fromID, toID uuid.UUID, amount float64, reference string) error {
	from, err := getAccount(tx, fromID)
	if err != nil {
		return err
	}
	if from.Reserved < amount {
		return apperr.Internal(nil, "commit of %.2f exceeds reserved balance %.2f on account %s", amount, from.Reserved, fromID)
	}
	from.Reserved = money.RoundCents(from.Reserved - amount)
	// Committed funds leave the lender's deposits for good.
	from.TotalDeposited = money.RoundCents(from.TotalDeposited - amount)
	if err := s.saveWithEntry(tx, from, EntryCommit, amount, reference, "reserved funds committed"); err != nil {
		return err
	}

	to, err := getAccount(tx, toID)
	if err != nil {
		return err
	}
	to.Available = money.RoundCents(to.Available + amount)
	to.TotalDeposited = money.RoundCents(to.TotalDeposited + amount)
	return s.saveWithEntry(tx, to, EntryTransferIn, amount, reference, "loan disbursement received")
}

// TransferTx moves available funds between two accounts within tx.
func (s *Store) TransferTx(tx *gorm.DB, fromID, toID uuid.UUID, amount float64, reference string) error {
	from, err := getAccount(tx, fromID)
	if err != nil {
		return err
	}
	if from.Available < amount {
		return apperr.InsufficientFunds("available balance %.2f is less than %.2f", from.Available, amount)
	}
	from.Available = money.RoundCents(from.Available - amount)
	from.TotalDeposited = money.RoundCents(from.TotalDeposited - amount)
	if err := s.saveWithEntry(tx, from, EntryTransferOut, amount, reference, "funds transferred out"); err != nil {
		return err
	}

	to, err := getAccount(tx, toID)
	if err != nil {
		return err
	}
	to.Available = money.RoundCents(to.Available + amount)
	to.TotalDeposited = money.RoundCents(to.TotalDeposited + amount)
	return s.saveWithEntry(tx, to, EntryTransferIn, amount, reference, "funds transferred in")
}

// ListEntries returns the audit trail for an account, newest first.
func (s *Store) ListEntries(ctx context.Context, accountID uuid.UUID) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to list ledger entries")
	}
	return entries, nil
}

func (s *Store) saveWithEntry(tx *gorm.DB, account *Account, entryType EntryType, amount float64, reference, description string) error {
	if err := checkInvariants(account); err != nil {
		return err
	}
	if err := tx.Save(account).Error; err != nil {
		return apperr.Internal(err, "failed to update account %s", account.ID)
	}
	entry := &Entry{
		AccountID:   account.ID,
		Type:        entryType,
		Amount:      amount,
		ReferenceID: reference,
		Description: description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return apperr.Internal(err, "failed to write ledger entry for account %s", account.ID)
	}
	return nil
}

// checkInvariants verifies balance consistency before any write is
// committed. A violation means a bug, so the transaction is aborted.
func checkInvariants(account *Account) error {
	const epsilon = 1e-6
	if account.Reserved < -epsilon {
		return apperr.Internal(nil, "reserved balance %.2f went negative on account %s", account.Reserved, account.ID)
	}
	if account.Available < -epsilon {
		return apperr.Internal(nil, "available balance %.2f went negative on account %s", account.Available, account.ID)
	}
	if account.Available+account.Reserved > account.TotalDeposited+epsilon {
		return apperr.Internal(nil, "account %s holds %.2f against %.2f deposited",
			account.ID, account.Available+account.Reserved, account.TotalDeposited)
	}
	return nil
}

func getAccount(tx *gorm.DB, id uuid.UUID) (*Account, error) {
	var account Account
	err := tx.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("account %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load account %s", id)
	}
	return &account, nil
}
