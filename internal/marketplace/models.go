package marketplace

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingStatus is the lifecycle state of a marketplace listing.
type ListingStatus string

const (
	StatusListed    ListingStatus = "listed"
	StatusSold      ListingStatus = "sold"
	StatusWithdrawn ListingStatus = "withdrawn"
)

// ListingKind mirrors the listing types offered to sellers. Settlement
// always transfers the whole economic ownership; fractional ownership is a
// future extension.
type ListingKind string

const (
	KindPartial ListingKind = "partial"
	KindFull    ListingKind = "full"
	KindSplit50 ListingKind = "split_50"
)

// Listing is a secondary-market offer to sell a loan's remaining balance.
// A loan has at most one active listing at a time.
type Listing struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	LoanID          uuid.UUID     `json:"loan_id" gorm:"type:uuid;not null;index"`
	SellerAccountID uuid.UUID     `json:"seller_account_id" gorm:"type:uuid;not null;index"`
	AskingPrice     float64       `json:"asking_price" gorm:"type:decimal(14,2);not null"`
	Kind            ListingKind   `json:"kind" gorm:"not null;default:'full'"`
	Status          ListingStatus `json:"status" gorm:"default:'listed';index"`

	BuyerAccountID *uuid.UUID `json:"buyer_account_id" gorm:"type:uuid"`
	SalePrice      *float64   `json:"sale_price" gorm:"type:decimal(14,2)"`
	SoldAt         *time.Time `json:"sold_at"`
	WithdrawnAt    *time.Time `json:"withdrawn_at"`

	ListedAt  time.Time `json:"listed_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
