package petition

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a loan petition. Transitions are
// monotonic: open is the only state with outgoing edges besides
// fully_funded -> converted.
type Status string

const (
	StatusOpen        Status = "open"
	StatusFullyFunded Status = "fully_funded"
	StatusConverted   Status = "converted"
	StatusCancelled   Status = "cancelled"
	StatusExpired     Status = "expired"
)

// SecurityKind tags a petition as secured or unsecured. Secured petitions
// carry collateral types; unsecured ones carry none.
type SecurityKind string

const (
	SecuritySecured   SecurityKind = "secured"
	SecurityUnsecured SecurityKind = "unsecured"
)

// CosignKind tags a petition as cosigned or solo.
type CosignKind string

const (
	CosignCosigned CosignKind = "cosigned"
	CosignSolo     CosignKind = "solo"
)

// Petition is a borrower's request for a loan, open for funding.
type Petition struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BorrowerAccountID uuid.UUID `json:"borrower_account_id" gorm:"type:uuid;not null;index"`

	Principal    float64 `json:"principal" gorm:"type:decimal(14,2);not null"`
	Currency     string  `json:"currency" gorm:"not null"`
	APR          float64 `json:"apr" gorm:"type:decimal(6,3);not null"`
	TermMonths   int     `json:"term_months" gorm:"not null"`
	ScheduleKind string  `json:"schedule_kind" gorm:"not null;default:'monthly'"`

	Purpose     string `json:"purpose" gorm:"not null"`
	Description string `json:"description"`

	FundedAmount float64 `json:"funded_amount" gorm:"type:decimal(14,2);not null;default:0"`
	Status       Status  `json:"status" gorm:"default:'open';index"`

	// Security variant
	SecurityKind    SecurityKind   `json:"security_kind" gorm:"not null;default:'unsecured'"`
	CollateralTypes datatypes.JSON `json:"collateral_types" gorm:"default:'[]'"`

	// Cosign variant
	CosignKind        CosignKind `json:"cosign_kind" gorm:"not null;default:'solo'"`
	CosignerAccountID *uuid.UUID `json:"cosigner_account_id" gorm:"type:uuid"`

	GoverningLaw    string `json:"governing_law"`
	AdditionalTerms string `json:"additional_terms"`

	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FundedPercentage is strictly derived from the contribution sum; the
// client never supplies it.
func (p *Petition) FundedPercentage() float64 {
	if p.Principal <= 0 {
		return 0
	}
	return p.FundedAmount / p.Principal * 100
}

func (p *Petition) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
