package petition

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"endless-wallet/lending-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, p *Petition) error
	GetByID(ctx context.Context, id uuid.UUID) (*Petition, error)
	Update(ctx context.Context, p *Petition) error
	List(ctx context.Context, status *Status) ([]Petition, error)
	ListOpenExpiredBefore(ctx context.Context, cutoff time.Time) ([]Petition, error)

	// WithTx returns a repository bound to an open transaction.
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

func (r *gormRepository) Create(ctx context.Context, p *Petition) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return apperr.Internal(err, "failed to create petition")
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Petition, error) {
	var p Petition
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("petition %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load petition %s", id)
	}
	return &p, nil
}

func (r *gormRepository) Update(ctx context.Context, p *Petition) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return apperr.Internal(err, "failed to update petition %s", p.ID)
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, status *Status) ([]Petition, error) {
	var petitions []Petition
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Find(&petitions).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list petitions")
	}
	return petitions, nil
}

func (r *gormRepository) ListOpenExpiredBefore(ctx context.Context, cutoff time.Time) ([]Petition, error) {
	var petitions []Petition
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", StatusOpen, cutoff).
		Find(&petitions).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to list expired petitions")
	}
	return petitions, nil
}
