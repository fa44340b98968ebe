package matches

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// UniqueConstraint guards one match per (listing, collector) pair.
const UniqueConstraint = "ux_matches_listing_collector"

// Repository persists matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, match *models.Match) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Match, error)
	FindByListingAndCollector(ctx context.Context, listingID, collectorID uuid.UUID) (*models.Match, error)
	LockByListingAndStatus(ctx context.Context, listingID uuid.UUID, status enums.MatchStatus) ([]models.Match, error)
	UpdateStatus(ctx context.Context, match *models.Match) error
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Match, error)
	ListByCollector(ctx context.Context, collectorID uuid.UUID, limit int) ([]models.Match, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a matches repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, match *models.Match) error {
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var match models.Match
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&match).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var match models.Match
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&match).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repository) FindByListingAndCollector(ctx context.Context, listingID, collectorID uuid.UUID) (*models.Match, error) {
	var match models.Match
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND collector_id = ?", listingID, collectorID).
		First(&match).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

// LockByListingAndStatus locks the listing's matches in the given status in id order.
func (r *repository) LockByListingAndStatus(ctx context.Context, listingID uuid.UUID, status enums.MatchStatus) ([]models.Match, error) {
	var rows []models.Match
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("listing_id = ? AND status = ?", listingID, status).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, match *models.Match) error {
	match.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("id = ?", match.ID).
		Updates(map[string]any{
			"status":     match.Status,
			"updated_at": match.UpdatedAt,
		}).Error
}

func (r *repository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Match, error) {
	var rows []models.Match
	if err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByCollector(ctx context.Context, collectorID uuid.UUID, limit int) ([]models.Match, error) {
	query := r.db.WithContext(ctx).
		Where("collector_id = ?", collectorID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Match
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
