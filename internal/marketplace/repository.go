package marketplace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	Update(ctx context.Context, l *Listing) error
	GetActiveByLoan(ctx context.Context, loanID uuid.UUID) (*Listing, error)
	ListActive(ctx context.Context) ([]Listing, error)

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

func (r *gormRepository) Create(ctx context.Context, l *Listing) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return apperr.Internal(err, "failed to create listing")
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	var l Listing
	err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("listing %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load listing %s", id)
	}
	return &l, nil
}

func (r *gormRepository) Update(ctx context.Context, l *Listing) error {
	if err := r.db.WithContext(ctx).Save(l).Error; err != nil {
		return apperr.Internal(err, "failed to update listing %s", l.ID)
	}
	return nil
}

// GetActiveByLoan returns the loan's active listing, or nil when none
// exists.
func (r *gormRepository) GetActiveByLoan(ctx context.Context, loanID uuid.UUID) (*Listing, error) {
	var l Listing
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status = ?", loanID, StatusListed).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load active listing for loan %s", loanID)
	}
	return &l, nil
}

func (r *gormRepository) ListActive(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusListed).
		Order("listed_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to list active listings")
	}
	return listings, nil
}
