package funding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContributionStatus tracks a lender's stake through its lifecycle.
// Reserved funds are held against the lender's balance; committed funds
// have been disbursed to the borrower; released funds went back to the
// lender after a cancellation or expiry.
type ContributionStatus string

const (
	StatusReserved  ContributionStatus = "reserved"
	StatusCommitted ContributionStatus = "committed"
	StatusReleased  ContributionStatus = "released"
)

// Contribution is a lender's stake toward funding a petition.
type Contribution struct {
	ID              uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	PetitionID      uuid.UUID          `json:"petition_id" gorm:"type:uuid;not null;index"`
	LenderAccountID uuid.UUID          `json:"lender_account_id" gorm:"type:uuid;not null;index"`
	Amount          float64            `json:"amount" gorm:"type:decimal(14,2);not null"`
	Status          ContributionStatus `json:"status" gorm:"default:'reserved';index"`
	CommittedAt     *time.Time         `json:"committed_at"`
	ReleasedAt      *time.Time         `json:"released_at"`
	CreatedAt       time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
