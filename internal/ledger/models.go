package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account holds a user's balances. Available and reserved funds are tracked
// separately; reserving moves money between the two without changing the
// total. KYCVerified and CoreScore are facts supplied by external services
// and are never re-validated here.
type Account struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name           string    `json:"name" gorm:"not null"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	Currency       string    `json:"currency" gorm:"not null;default:'USD'"`
	Available      float64   `json:"available" gorm:"type:decimal(14,2);not null;default:0"`
	Reserved       float64   `json:"reserved" gorm:"type:decimal(14,2);not null;default:0"`
	TotalDeposited float64   `json:"total_deposited" gorm:"type:decimal(14,2);not null;default:0"`

	// External facts
	KYCVerified   bool `json:"kyc_verified" gorm:"default:false"`
	BankConnected bool `json:"bank_connected" gorm:"default:false"`
	CoreScore     int  `json:"core_score" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// EntryType classifies ledger audit entries.
type EntryType string

const (
	EntryDeposit     EntryType = "deposit"
	EntryReserve     EntryType = "reserve"
	EntryRelease     EntryType = "release"
	EntryCommit      EntryType = "commit"
	EntryTransferIn  EntryType = "transfer_in"
	EntryTransferOut EntryType = "transfer_out"
)

// Entry is the append-only audit record written alongside every balance
// mutation in the same transaction.
type Entry struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	AccountID   uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index"`
	Type        EntryType `json:"type" gorm:"not null;index"`
	Amount      float64   `json:"amount" gorm:"type:decimal(14,2);not null"`
	ReferenceID string    `json:"reference_id" gorm:"index"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
