package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one immutable per-gallon price record. The set of
// snapshots is an append-only log; the current price is the snapshot
// with the latest UpdatedAt.
type PriceSnapshot struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	RegularPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"regularPrice"`
	AlkalinePrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"alkalinePrice"`
	UpdatedBy     string          `gorm:"size:128" json:"updatedBy,omitempty"`
	Notes         string          `gorm:"size:512" json:"notes,omitempty"`
	UpdatedAt     time.Time       `gorm:"index" json:"updatedAt"`
}

func (PriceSnapshot) TableName() string { return "price_snapshot" }

// Default per-gallon prices used before any snapshot has been recorded.
var (
	DefaultRegularPrice  = decimal.NewFromFloat(1.50)
	DefaultAlkalinePrice = decimal.NewFromFloat(2.00)
)
