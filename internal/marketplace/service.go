package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/internal/ledger"
	"endless-wallet/lending-backend/internal/loan"
	"endless-wallet/lending-backend/internal/money"
	"endless-wallet/lending-backend/pkg/apperr"
	"endless-wallet/lending-backend/pkg/workflows"
)

// Events receives marketplace notifications. Implementations must not
// block.
type Events interface {
	ListingSold(l *Listing)
}

// NoteProjection is the read model served to marketplace browsers: the
// listing joined with its loan plus derived pricing figures.
type NoteProjection struct {
	Listing             Listing `json:"listing"`
	OriginalAmount      float64 `json:"original_amount"`
	RemainingBalance    float64 `json:"remaining_balance"`
	APR                 float64 `json:"apr"`
	TermRemainingMonths int     `json:"term_remaining_months"`
	TotalTermMonths     int     `json:"total_term_months"`
	Purpose             string  `json:"purpose"`
	DiscountPercentage  float64 `json:"discount_percentage"`
	YieldToMaturity     float64 `json:"yield_to_maturity"`
	ProgressPercentage  float64 `json:"progress_percentage"`
}

// Service owns the listing lifecycle and settles ownership transfers
// atomically through the ledger store.
type Service struct {
	repo    Repository
	loans   loan.Repository
	store   *ledger.Store
	machine *workflows.StateMachine
	logger  *zap.Logger
	events  Events

	// maxDiscountTolerance is how far below ask an offer may come in,
	// as a fraction (0 means the offer must meet the ask exactly).
	maxDiscountTolerance float64
}

func NewService(repo Repository, loans loan.Repository, store *ledger.Store, logger *zap.Logger, maxDiscountTolerance float64) *Service {
	return &Service{
		repo:                 repo,
		loans:                loans,
		store:                store,
		machine:              workflows.ForListings(),
		logger:               logger,
		maxDiscountTolerance: maxDiscountTolerance,
	}
}

func (s *Service) SetEvents(e Events) {
	s.events = e
}

// ListNote puts a loan's remaining balance up for sale. Only the loan's
// current economic owner may list, and a loan carries at most one active
// listing.
func (s *Service) ListNote(ctx context.Context, loanID, sellerID uuid.UUID, askingPrice float64, kind ListingKind) (*Listing, error) {
	if askingPrice <= 0 {
		return nil, apperr.InvalidPrice("asking price must be positive, got %.2f", askingPrice)
	}
	switch kind {
	case KindPartial, KindFull, KindSplit50:
	default:
		return nil, apperr.InvalidPrice("unsupported listing kind %q", kind)
	}

	unlock := s.store.LockAggregate("loan:" + loanID.String())
	defer unlock()

	var listing *Listing
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		l, err := s.loans.WithTx(tx).GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		if l.OwnerAccountID != sellerID {
			return apperr.NotOwner("account %s does not own loan %s", sellerID, loanID)
		}
		active, err := s.repo.WithTx(tx).GetActiveByLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.AlreadyListed("loan %s already has active listing %s", loanID, active.ID)
		}

		listing = &Listing{
			LoanID:          loanID,
			SellerAccountID: sellerID,
			AskingPrice:     money.RoundCents(askingPrice),
			Kind:            kind,
			Status:          StatusListed,
		}
		return s.repo.WithTx(tx).Create(ctx, listing)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("note listed",
		zap.String("listing_id", listing.ID.String()),
		zap.String("loan_id", loanID.String()),
		zap.Float64("asking_price", listing.AskingPrice))
	return listing, nil
}

// PurchaseNote settles a sale: it debits the buyer, credits the seller and
// reassigns the loan's economic owner in one transaction. Concurrent
// purchases of the same listing serialize; exactly one wins and the rest
// observe ListingNotActive.
func (s *Service) PurchaseNote(ctx context.Context, listingID, buyerID uuid.UUID, offerPrice float64) (*Listing, error) {
	current, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	unlock := s.store.LockAggregate("loan:" + current.LoanID.String())
	defer unlock()
	unlockAccounts := s.store.LockAccounts(buyerID, current.SellerAccountID)
	defer unlockAccounts()

	var sold *Listing
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != StatusListed {
			return apperr.ListingNotActive("listing %s is %s", listing.ID, listing.Status)
		}
		if buyerID == listing.SellerAccountID {
			return apperr.InvalidState("seller cannot purchase their own listing %s", listing.ID)
		}

		// Counteroffers are made by relisting at a new price, not by
		// lowballing inside the purchase.
		floor := listing.AskingPrice * (1 - s.maxDiscountTolerance)
		if offerPrice < floor-1e-9 {
			return apperr.InvalidPrice("offer %.2f is below the acceptable floor %.2f", offerPrice, floor)
		}

		offerPrice = money.RoundCents(offerPrice)
		ref := "listing:" + listing.ID.String()
		if err := s.store.TransferTx(tx, buyerID, listing.SellerAccountID, offerPrice, ref); err != nil {
			return err
		}
		if err := s.loans.WithTx(tx).UpdateOwner(ctx, listing.LoanID, buyerID); err != nil {
			return err
		}

		now := time.Now()
		listing.Status = StatusSold
		listing.BuyerAccountID = &buyerID
		listing.SalePrice = &offerPrice
		listing.SoldAt = &now
		if err := repo.Update(ctx, listing); err != nil {
			return err
		}
		sold = listing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.ListingSold(sold)
	}
	s.logger.Info("note sold",
		zap.String("listing_id", sold.ID.String()),
		zap.String("buyer_account_id", buyerID.String()),
		zap.Float64("price", *sold.SalePrice))
	return sold, nil
}

// WithdrawListing takes an active listing off the market. Only the seller
// may withdraw.
func (s *Service) WithdrawListing(ctx context.Context, listingID, sellerID uuid.UUID) (*Listing, error) {
	current, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	unlock := s.store.LockAggregate("loan:" + current.LoanID.String())
	defer unlock()

	var withdrawn *Listing
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.SellerAccountID != sellerID {
			return apperr.NotOwner("account %s is not the seller of listing %s", sellerID, listingID)
		}
		if !s.machine.CanTransition(string(listing.Status), string(StatusWithdrawn)) {
			return apperr.ListingNotActive("listing %s is %s", listing.ID, listing.Status)
		}

		now := time.Now()
		listing.Status = StatusWithdrawn
		listing.WithdrawnAt = &now
		if err := repo.Update(ctx, listing); err != nil {
			return err
		}
		withdrawn = listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// BrowseNotes returns all active listings with their derived figures.
func (s *Service) BrowseNotes(ctx context.Context) ([]NoteProjection, error) {
	listings, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	notes := make([]NoteProjection, 0, len(listings))
	for i := range listings {
		note, err := s.ProjectNote(ctx, &listings[i])
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}
	return notes, nil
}

// ProjectNote joins a listing with its loan and computes the figures the
// client displays.
func (s *Service) ProjectNote(ctx context.Context, listing *Listing) (*NoteProjection, error) {
	l, err := s.loans.GetByID(ctx, listing.LoanID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.loans.GetSchedule(ctx, listing.LoanID)
	if err != nil {
		return nil, err
	}

	remainingMonths := loan.RemainingMonths(l, schedule)
	note := &NoteProjection{
		Listing:             *listing,
		OriginalAmount:      l.Principal,
		RemainingBalance:    l.OutstandingPrincipal,
		APR:                 l.APR,
		TermRemainingMonths: remainingMonths,
		TotalTermMonths:     l.TermMonths,
		Purpose:             l.Purpose,
		DiscountPercentage:  money.DiscountPercentage(l.OutstandingPrincipal, listing.AskingPrice),
	}
	if l.TermMonths > 0 {
		note.ProgressPercentage = float64(l.TermMonths-remainingMonths) / float64(l.TermMonths) * 100
	}
	if remainingMonths > 0 {
		ytm, err := money.YieldToMaturity(l.OutstandingPrincipal, listing.AskingPrice, remainingMonths)
		if err == nil {
			note.YieldToMaturity = ytm
		}
	}
	return note, nil
}
