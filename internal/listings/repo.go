package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// Repository persists waste listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.WasteListing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WasteListing, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.WasteListing, error)
	SaveState(ctx context.Context, listing *models.WasteListing) error
	List(ctx context.Context, filter ListFilter) ([]models.WasteListing, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID, limit int) ([]models.WasteListing, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a listings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.WasteListing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WasteListing, error) {
	var listing models.WasteListing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.WasteListing, error) {
	var listing models.WasteListing
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// SaveState writes only the lifecycle-owned columns of the listing.
func (r *repository) SaveState(ctx context.Context, listing *models.WasteListing) error {
	listing.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WasteListing{}).
		Where("id = ?", listing.ID).
		Updates(map[string]any{
			"status":           listing.Status,
			"estimated_reward": listing.EstimatedReward,
			"awarded_reward":   listing.AwardedReward,
			"updated_at":       listing.UpdatedAt,
		}).Error
}

// ListFilter narrows List. A nil ExcludePoster keeps every poster.
type ListFilter struct {
	Status        enums.ListingStatus
	ExcludePoster uuid.UUID
	Limit         int
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.WasteListing, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", filter.Status).
		Order("created_at DESC")
	if filter.ExcludePoster != uuid.Nil {
		query = query.Where("poster_id <> ?", filter.ExcludePoster)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []models.WasteListing
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByPoster(ctx context.Context, posterID uuid.UUID, limit int) ([]models.WasteListing, error) {
	query := r.db.WithContext(ctx).
		Where("poster_id = ?", posterID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.WasteListing
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
