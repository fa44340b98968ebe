package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// Match is a collector's request to take a specific listing. A listing holds
// at most one match per collector.
type Match struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ListingID   uuid.UUID         `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:ux_matches_listing_collector,priority:1"`
	CollectorID uuid.UUID         `gorm:"column:collector_id;type:uuid;not null;uniqueIndex:ux_matches_listing_collector,priority:2;index"`
	Status      enums.MatchStatus `gorm:"column:status;type:text;not null"`
	Message     string            `gorm:"column:message;not null;default:''"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Match) TableName() string { return "matches" }

func (m *Match) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
