package funding

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, c *Contribution) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contribution, error)
	Update(ctx context.Context, c *Contribution) error
	ListByPetition(ctx context.Context, petitionID uuid.UUID, status *ContributionStatus) ([]Contribution, error)

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

func (r *gormRepository) Create(ctx context.Context, c *Contribution) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperr.Internal(err, "failed to create contribution")
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contribution, error) {
	var c Contribution
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("contribution %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load contribution %s", id)
	}
	return &c, nil
}

func (r *gormRepository) Update(ctx context.Context, c *Contribution) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return apperr.Internal(err, "failed to update contribution %s", c.ID)
	}
	return nil
}

func (r *gormRepository) ListByPetition(ctx context.Context, petitionID uuid.UUID, status *ContributionStatus) ([]Contribution, error) {
	var contributions []Contribution
	query := r.db.WithContext(ctx).
		Where("petition_id = ?", petitionID).
		Order("created_at ASC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Find(&contributions).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list contributions for petition %s", petitionID)
	}
	return contributions, nil
}
