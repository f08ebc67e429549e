package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aquadepot/ledger-service/internal/model"
)

// Sentinel errors shared by every store implementation.
var (
	// ErrNotFound means the referenced customer or record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a concurrent writer updated the customer between
	// our read and write; the caller must re-read and retry.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrExhausted means membership-ID generation ran out of attempts.
	ErrExhausted = errors.New("membership id generation exhausted")

	// ErrStoreUnavailable means the backing store is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports a bad input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError rejects a purchase that exceeds the customer's
// balance. Shortfall is exactly Amount - Balance.
type InsufficientBalanceError struct {
	Balance   decimal.Decimal
	Amount    decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s (short %s)",
		e.Balance.StringFixed(2), e.Amount.StringFixed(2), e.Shortfall.StringFixed(2))
}

// DuplicateSuspectedError flags a purchase that looks like a repeat of the
// customer's previous transaction (same type and amount within five
// minutes). It is a confirmable warning, not a hard failure: retrying with
// the confirm flag set always lets the write through.
type DuplicateSuspectedError struct {
	Prior model.Transaction
}

func (e *DuplicateSuspectedError) Error() string {
	return fmt.Sprintf("possible duplicate of transaction %s (%s %s at %s)",
		e.Prior.ID, e.Prior.Type, e.Prior.Amount.StringFixed(2),
		e.Prior.CreatedAt.Format("15:04:05"))
}
