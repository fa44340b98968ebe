package outbox

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

const (
	dlqErrorLimit    = 1024
	dlqDefaultRecent = 50
	dlqMaxRecent     = 500
)

// DLQFilter narrows a dead-letter listing. Zero values match everything.
type DLQFilter struct {
	EventType enums.OutboxEventType
	Reason    enums.OutboxDLQErrorReason
	Limit     int
}

// DLQRepository stores events the publisher stopped retrying.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// Record parks an event inside the caller's transaction so the dead-letter
// row and the outbox row update commit together.
func (r *DLQRepository) Record(ctx context.Context, tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "dead-letter insert needs a transaction")
	}
	if entry.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "dead-letter entry is missing its event id")
	}
	if entry.ErrorMessage != nil {
		clipped := clipErrorMessage(*entry.ErrorMessage)
		entry.ErrorMessage = &clipped
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return dbpkg.Classify(err, "record dead-letter event")
	}
	return nil
}

// Get returns the dead-letter row for an outbox event id.
func (r *DLQRepository) Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var row models.OutboxDLQ
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&row).Error; err != nil {
		return nil, dbpkg.Classify(err, "dead-letter event not found")
	}
	return &row, nil
}

// Recent lists dead-letter rows newest first.
func (r *DLQRepository) Recent(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = dlqDefaultRecent
	case limit > dlqMaxRecent:
		limit = dlqMaxRecent
	}

	q := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}

	var rows []models.OutboxDLQ
	if err := q.Order("failed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbpkg.Classify(err, "list dead-letter events")
	}
	return rows, nil
}

// clipErrorMessage keeps at most dlqErrorLimit bytes without splitting a rune.
func clipErrorMessage(message string) string {
	if len(message) <= dlqErrorLimit {
		return message
	}
	cut := dlqErrorLimit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// PurgeBefore deletes dead-letter rows that failed before cutoff.
func (r *DLQRepository) PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "dead-letter purge needs a transaction")
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	if res.Error != nil {
		return 0, dbpkg.Classify(res.Error, "purge dead-letter events")
	}
	return res.RowsAffected, nil
}
