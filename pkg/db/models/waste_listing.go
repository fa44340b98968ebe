package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// WasteListing is a posted quantity of material awaiting collection.
type WasteListing struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PosterID        uuid.UUID           `gorm:"column:poster_id;type:uuid;not null;index"`
	Title           string              `gorm:"column:title;not null"`
	Description     string              `gorm:"column:description;not null;default:''"`
	MaterialKind    enums.MaterialKind  `gorm:"column:material_kind;type:text;not null"`
	Quantity        decimal.Decimal     `gorm:"column:quantity;type:numeric(10,2);not null"`
	Unit            string              `gorm:"column:unit;not null;default:'kg'"`
	Location        string              `gorm:"column:location;not null;default:''"`
	Status          enums.ListingStatus `gorm:"column:status;type:text;not null;index"`
	EstimatedReward decimal.Decimal     `gorm:"column:estimated_reward;type:numeric(12,2);not null;default:0"`
	AwardedReward   decimal.Decimal     `gorm:"column:awarded_reward;type:numeric(12,2);not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (WasteListing) TableName() string { return "waste_listings" }

func (l *WasteListing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
