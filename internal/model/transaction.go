package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Fund deposits increase the customer balance,
// water purchases (regular/alkaline) decrease it.
const (
	TypeRegular  = "regular"
	TypeAlkaline = "alkaline"
	TypeFund     = "fund"
)

// ValidType reports whether t is a known transaction type.
func ValidType(t string) bool {
	return t == TypeRegular || t == TypeAlkaline || t == TypeFund
}

// IsPurchase reports whether t is a water purchase type.
func IsPurchase(t string) bool {
	return t == TypeRegular || t == TypeAlkaline
}

// Transaction is one immutable entry in the append-only ledger.
// CustomerBalance is the customer's balance after this transaction was
// applied, captured at write time so history displays stay correct even
// after the live balance moves on.
type Transaction struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	CustomerID string `gorm:"size:36;index;not null" json:"customerId"`

	// Denormalized for display without a join.
	MembershipID string `gorm:"size:8" json:"membershipId"`
	CustomerName string `gorm:"size:128" json:"customerName"`

	Type    string              `gorm:"size:16;not null" json:"type"`
	Amount  decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"amount"`
	Gallons decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"gallons,omitempty"`

	CustomerBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"customerBalance"`

	Notes     string    `gorm:"size:512" json:"notes,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (Transaction) TableName() string { return "ledger_transaction" }
