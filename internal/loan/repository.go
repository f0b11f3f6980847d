package loan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, l *Loan, schedule []ScheduledPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	GetByPetitionID(ctx context.Context, petitionID uuid.UUID) (*Loan, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Loan, error)
	Update(ctx context.Context, l *Loan) error
	UpdateOwner(ctx context.Context, loanID, newOwner uuid.UUID) error
	GetSchedule(ctx context.Context, loanID uuid.UUID) ([]ScheduledPayment, error)
	UpdatePayment(ctx context.Context, p *ScheduledPayment) error

	WithTx(tx *gorm.DB) Repository
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, l *Loan, schedule []ScheduledPayment) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return apperr.Internal(err, "failed to create loan for petition %s", l.PetitionID)
	}
	for i := range schedule {
		schedule[i].LoanID = l.ID
	}
	if len(schedule) > 0 {
		if err := r.db.WithContext(ctx).Create(&schedule).Error; err != nil {
			return apperr.Internal(err, "failed to create schedule for loan %s", l.ID)
		}
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Loan, error) {
	var l Loan
	err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("loan %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load loan %s", id)
	}
	return &l, nil
}

func (r *gormRepository) GetByPetitionID(ctx context.Context, petitionID uuid.UUID) (*Loan, error) {
	var l Loan
	err := r.db.WithContext(ctx).First(&l, "petition_id = ?", petitionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("no loan for petition %s", petitionID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load loan for petition %s", petitionID)
	}
	return &l, nil
}

func (r *gormRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Loan, error) {
	var loans []Loan
	err := r.db.WithContext(ctx).
		Where("owner_account_id = ?", ownerID).
		Order("created_at DESC").
		Find(&loans).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to list loans for owner %s", ownerID)
	}
	return loans, nil
}

func (r *gormRepository) Update(ctx context.Context, l *Loan) error {
	if err := r.db.WithContext(ctx).Save(l).Error; err != nil {
		return apperr.Internal(err, "failed to update loan %s", l.ID)
	}
	return nil
}

func (r *gormRepository) UpdateOwner(ctx context.Context, loanID, newOwner uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&Loan{}).
		Where("id = ?", loanID).
		Update("owner_account_id", newOwner)
	if result.Error != nil {
		return apperr.Internal(result.Error, "failed to reassign loan %s", loanID)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("loan %s not found", loanID)
	}
	return nil
}

func (r *gormRepository) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]ScheduledPayment, error) {
	var schedule []ScheduledPayment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("sequence ASC").
		Find(&schedule).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load schedule for loan %s", loanID)
	}
	return schedule, nil
}

func (r *gormRepository) UpdatePayment(ctx context.Context, p *ScheduledPayment) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return apperr.Internal(err, "failed to update payment %s", p.ID)
	}
	return nil
}
