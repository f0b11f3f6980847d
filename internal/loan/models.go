package loan

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Loan is the contractual obligation created once a petition is fully
// funded and converted. Principal, APR and term never change after
// creation; only the outstanding balance, the payment records and the
// economic owner do.
type Loan struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	PetitionID uuid.UUID `json:"petition_id" gorm:"type:uuid;not null;uniqueIndex"`

	BorrowerAccountID uuid.UUID `json:"borrower_account_id" gorm:"type:uuid;not null;index"`
	// OwnerAccountID is the current economic owner: the party that
	// receives repayments and may list the loan on the marketplace.
	OwnerAccountID uuid.UUID `json:"owner_account_id" gorm:"type:uuid;not null;index"`

	Principal            float64 `json:"principal" gorm:"type:decimal(14,2);not null"`
	OutstandingPrincipal float64 `json:"outstanding_principal" gorm:"type:decimal(14,2);not null"`
	APR                  float64 `json:"apr" gorm:"type:decimal(6,3);not null"`
	TermMonths           int     `json:"term_months" gorm:"not null"`
	ScheduleKind         string  `json:"schedule_kind" gorm:"not null"`
	Currency             string  `json:"currency" gorm:"not null"`
	Purpose              string  `json:"purpose"`
	GoverningLaw         string  `json:"governing_law"`

	StartedAt time.Time `json:"started_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ScheduledPayment is one installment of a loan's repayment plan.
type ScheduledPayment struct {
	ID       uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	LoanID   uuid.UUID  `json:"loan_id" gorm:"type:uuid;not null;index"`
	Sequence int        `json:"sequence" gorm:"not null"`
	Amount   float64    `json:"amount" gorm:"type:decimal(14,2);not null"`
	DueDate  time.Time  `json:"due_date" gorm:"not null"`
	Paid     bool       `json:"paid" gorm:"default:false"`
	PaidAt   *time.Time `json:"paid_at"`
}

func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (p *ScheduledPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PeriodMonths returns the number of months between installments.
func (l *Loan) PeriodMonths() int {
	if l.ScheduleKind == "quarterly" {
		return 3
	}
	return 1
}

// RemainingMonths derives the remaining term from the unpaid installments.
func RemainingMonths(l *Loan, schedule []ScheduledPayment) int {
	unpaid := 0
	for _, p := range schedule {
		if !p.Paid {
			unpaid++
		}
	}
	return unpaid * l.PeriodMonths()
}
