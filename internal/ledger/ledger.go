package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aquadepot/ledger-service/internal/model"
)

// AllCustomers is the sentinel customer id meaning "every customer's
// transactions" in ListTransactions, used by the global history view.
const AllCustomers = "all"

// NewCustomer carries the caller-supplied fields for customer creation.
type NewCustomer struct {
	Name           string
	Phone          string
	Notes          string
	InitialBalance decimal.Decimal
}

// ProfileUpdate mutates only the profile fields a customer may edit.
// Balance and membership id are never touched through this path.
type ProfileUpdate struct {
	Name  *string
	Phone *string
	Notes *string
}

// Snapshot is the whole-collection backup/restore structure. Maps are
// keyed by record id; timestamps serialize as RFC 3339.
type Snapshot struct {
	Customers    map[string]model.Customer    `json:"customers"`
	Transactions map[string]model.Transaction `json:"transactions"`
	Settings     SettingsSnapshot             `json:"settings"`
	BackupDate   time.Time                    `json:"backupDate"`
	Version      string                       `json:"version"`
}

// SettingsSnapshot mirrors the settings collection: the current prices
// plus the append-only price history, most recent first.
type SettingsSnapshot struct {
	WaterPrices  *model.PriceSnapshot  `json:"waterPrices"`
	PriceHistory []model.PriceSnapshot `json:"priceHistory"`
}

// Store is the persistence contract for the ledger. Two implementations
// exist: a gorm/Postgres document store and a flat-file JSON store. The
// store is deliberately dumb about business policy: overdraft prevention
// and duplicate detection live in the service layer, and the store
// persists whatever balance the append computes. What the store does
// guarantee is atomicity of the paired write: a transaction record and
// the customer balance/lastTransaction update commit together or not at
// all.
type Store interface {
	// CreateCustomer assigns id, membership id and createdAt. When
	// InitialBalance > 0 a fund transaction for the full amount is
	// appended in the same atomic unit.
	CreateCustomer(ctx context.Context, nc NewCustomer) (*model.Customer, error)

	GetCustomer(ctx context.Context, id string) (*model.Customer, error)

	// UpdateCustomerProfile mutates name/phone/notes only.
	UpdateCustomerProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.Customer, error)

	// MembershipIDTaken is the exact-match existence check used by the
	// membership-ID generator.
	MembershipIDTaken(ctx context.Context, membershipID string) (bool, error)

	// AppendTransaction reads the customer's current balance, applies
	// amount according to typ (fund adds, purchases subtract), writes the
	// transaction with its balance-after snapshot and updates the
	// customer's balance and lastTransaction atomically. Returns
	// ErrConflict if a concurrent writer got there first.
	AppendTransaction(ctx context.Context, customerID, typ string, amount decimal.Decimal, gallons decimal.NullDecimal, notes string) (*model.Transaction, *model.Customer, error)

	// Balance returns the customer's current balance. Implementations may
	// answer from a side cache.
	Balance(ctx context.Context, customerID string) (decimal.Decimal, error)

	// ListCustomers pages through customers ordered by most recent
	// activity first. Pages are 1-based; hasMore is computed by fetching
	// one row beyond pageSize and trimming it.
	ListCustomers(ctx context.Context, page, pageSize int) ([]model.Customer, bool, error)

	// ListTransactions pages through history ordered by createdAt
	// descending. customerID may be AllCustomers.
	ListTransactions(ctx context.Context, customerID string, page, pageSize int) ([]model.Transaction, bool, error)

	// SearchCustomers does a store-delegated lookup: name prefix match,
	// or exact membership-id match when term is all digits.
	SearchCustomers(ctx context.Context, term string) ([]model.Customer, error)

	// CurrentPrices returns the latest price snapshot, or ErrNotFound
	// when none has been recorded yet.
	CurrentPrices(ctx context.Context) (*model.PriceSnapshot, error)

	// PriceHistory returns up to limit snapshots, newest first.
	PriceHistory(ctx context.Context, limit int) ([]model.PriceSnapshot, error)

	// RecordPriceChange appends a snapshot which atomically becomes the
	// current price.
	RecordPriceChange(ctx context.Context, regular, alkaline decimal.Decimal, updatedBy, notes string) (*model.PriceSnapshot, error)

	// ExportSnapshot dumps every collection; ImportSnapshot upserts by id
	// with the same field validation as live writes. Imported balances
	// are trusted as-is, mirroring the live-write trust model.
	ExportSnapshot(ctx context.Context) (*Snapshot, error)
	ImportSnapshot(ctx context.Context, snap *Snapshot) error
}

// ValidateNewCustomer applies the shared creation rules.
func ValidateNewCustomer(nc NewCustomer) error {
	if nc.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if nc.InitialBalance.IsNegative() {
		return &ValidationError{Field: "initialBalance", Reason: "must not be negative"}
	}
	return nil
}

// ValidateTransaction applies the shared append rules. Gallons must be
// positive for purchases and absent for funds.
func ValidateTransaction(typ string, amount decimal.Decimal, gallons decimal.NullDecimal) error {
	if !model.ValidType(typ) {
		return &ValidationError{Field: "type", Reason: "must be regular, alkaline or fund"}
	}
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if model.IsPurchase(typ) {
		if !gallons.Valid || !gallons.Decimal.IsPositive() {
			return &ValidationError{Field: "gallons", Reason: "must be positive for water purchases"}
		}
	} else if gallons.Valid {
		return &ValidationError{Field: "gallons", Reason: "not allowed for fund transactions"}
	}
	return nil
}
