package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// Account identifies a participant. BalanceCache always equals the signed
// sum of the account's ledger entries and is only written alongside them.
type Account struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName  string            `gorm:"column:display_name;not null"`
	Type         enums.AccountType `gorm:"column:type;type:text;not null"`
	Location     string            `gorm:"column:location;not null;default:''"`
	BalanceCache decimal.Decimal   `gorm:"column:balance_cache;type:numeric(12,2);not null;default:0"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
