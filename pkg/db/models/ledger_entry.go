package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// LedgerEntry records an immutable credit movement. Amount is signed:
// positive for credits, negative for debits.
type LedgerEntry struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Kind      enums.LedgerEntryKind `gorm:"column:kind;type:text;not null"`
	Reason    string                `gorm:"column:reason;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
