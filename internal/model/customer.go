package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the account record for one water-delivery customer.
// Balance is a denormalized projection of the transaction log: it is
// written atomically alongside every transaction and trusted on read.
type Customer struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	MembershipID string `gorm:"size:8;uniqueIndex;not null" json:"membershipId"`
	Name         string `gorm:"size:128;not null" json:"name"`
	Phone        string `gorm:"size:32" json:"phone,omitempty"`
	Notes        string `gorm:"size:512" json:"notes,omitempty"`

	Balance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`

	// Version guards concurrent balance updates (optimistic lock).
	Version uint64 `gorm:"not null;default:0" json:"-"`

	// LastTransaction is nil for a customer that has never transacted.
	LastTransaction *time.Time `gorm:"index" json:"lastTransaction,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Customer) TableName() string { return "customer" }
