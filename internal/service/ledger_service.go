package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aquadepot/ledger-service/internal/cache"
	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
	"github.com/aquadepot/ledger-service/internal/search"
)

// duplicateWindow is how far back a matching prior transaction counts
// as a likely duplicate.
const duplicateWindow = 5 * time.Minute

// LedgerService glues business policy (overdraft checks, duplicate
// detection, price lookups) to the store, and fronts all list reads
// with the page cache. The store stays dumb; every policy decision
// happens here.
type LedgerService struct {
	store ledger.Store
	cache *cache.PageCache
	log   *zap.SugaredLogger
}

// NewLedgerService returns the service with its own cache instance.
func NewLedgerService(store ledger.Store, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{store: store, cache: cache.NewPageCache(), log: logger}
}

// CreateCustomer creates the customer (and its opening fund transaction
// when the initial balance is positive) and drops every page that could
// now be stale.
func (s *LedgerService) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*model.Customer, error) {
	c, err := s.store.CreateCustomer(ctx, nc)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(cache.Customers)
	s.cache.Invalidate(cache.Transactions)
	s.cache.Invalidate(cache.Search)
	s.log.Infow("customer created", "id", c.ID, "membershipId", c.MembershipID)
	return c, nil
}

// GetCustomer reads one customer, always store-fresh.
func (s *LedgerService) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

// Balance reads one customer's current balance through the store's
// fast path (the gorm backend answers from its Redis side-cache when
// it can). Balance reads never go through the page cache.
func (s *LedgerService) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, id)
}

// UpdateCustomerProfile edits name/phone/notes.
func (s *LedgerService) UpdateCustomerProfile(ctx context.Context, id string, upd ledger.ProfileUpdate) (*model.Customer, error) {
	c, err := s.store.UpdateCustomerProfile(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(cache.Customers)
	s.cache.Invalidate(cache.Search)
	return c, nil
}

// TransactionRequest carries one transaction-creation request. For
// purchases the amount is normally derived from gallons times the
// current per-gallon price; a positive Amount overrides that (manual
// price adjustment). For funds Amount is the deposit itself.
type TransactionRequest struct {
	CustomerID       string
	Type             string
	Gallons          decimal.Decimal
	Amount           decimal.Decimal
	Notes            string
	ConfirmDuplicate bool
}

// CompleteTransaction runs the full policy pipeline: price the request,
// reject overdrafts with the exact shortfall, flag likely duplicates
// unless confirmed, then hand the append to the store's atomic write.
func (s *LedgerService) CompleteTransaction(ctx context.Context, req TransactionRequest) (*model.Transaction, *model.Customer, error) {
	if !model.ValidType(req.Type) {
		return nil, nil, &ledger.ValidationError{Field: "type", Reason: "must be regular, alkaline or fund"}
	}
	cust, err := s.store.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, nil, err
	}

	amount := req.Amount
	gallons := decimal.NullDecimal{}
	if model.IsPurchase(req.Type) {
		if !req.Gallons.IsPositive() {
			return nil, nil, &ledger.ValidationError{Field: "gallons", Reason: "must be positive for water purchases"}
		}
		gallons = decimal.NullDecimal{Decimal: req.Gallons, Valid: true}
		if !amount.IsPositive() {
			prices, err := s.CurrentPrices(ctx)
			if err != nil {
				return nil, nil, err
			}
			perGallon := prices.RegularPrice
			if req.Type == model.TypeAlkaline {
				perGallon = prices.AlkalinePrice
			}
			amount = req.Gallons.Mul(perGallon).Round(2)
		}

		// Overdraft is a policy decision made here, never in the store.
		shortfall := amount.Sub(cust.Balance)
		if shortfall.IsPositive() {
			return nil, nil, &ledger.InsufficientBalanceError{
				Balance:   cust.Balance,
				Amount:    amount,
				Shortfall: shortfall,
			}
		}

		if !req.ConfirmDuplicate {
			if prior, ok := s.recentDuplicate(ctx, req.CustomerID, req.Type, amount); ok {
				return nil, nil, &ledger.DuplicateSuspectedError{Prior: *prior}
			}
		}
	} else if !amount.IsPositive() {
		return nil, nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	txRow, updated, err := s.store.AppendTransaction(ctx, req.CustomerID, req.Type, amount, gallons, req.Notes)
	if err != nil {
		return nil, nil, err
	}
	s.cache.Invalidate(cache.Customers)
	s.cache.Invalidate(cache.Transactions)
	s.cache.Invalidate(cache.Search)
	s.log.Infow("transaction appended",
		"id", txRow.ID, "customerId", req.CustomerID, "type", req.Type,
		"amount", amount.StringFixed(2), "balance", updated.Balance.StringFixed(2))
	return txRow, updated, nil
}

// recentDuplicate checks the customer's immediately preceding
// transaction: same type, same amount, less than five minutes old.
func (s *LedgerService) recentDuplicate(ctx context.Context, customerID, typ string, amount decimal.Decimal) (*model.Transaction, bool) {
	last, _, err := s.store.ListTransactions(ctx, customerID, 1, 1)
	if err != nil {
		// the guard is advisory; a failing history read must not block
		// the write, but it must not fail silently either
		s.log.Warnw("duplicate check skipped", "customerId", customerID, "error", err)
		return nil, false
	}
	if len(last) == 0 {
		return nil, false
	}
	prior := last[0]
	if prior.Type != typ || !prior.Amount.Equal(amount) {
		return nil, false
	}
	if time.Since(prior.CreatedAt) >= duplicateWindow {
		return nil, false
	}
	return &prior, true
}

// ListCustomers is a read-through cached page of customers ordered by
// most recent activity. forceRefresh bypasses the cache and drops the
// entity so the next read is store-fresh too.
func (s *LedgerService) ListCustomers(ctx context.Context, page, pageSize int, forceRefresh bool) ([]model.Customer, bool, error) {
	if forceRefresh {
		s.cache.Invalidate(cache.Customers)
	} else if p, ok := s.cache.Get(cache.Customers, "", page); ok {
		if items, ok := p.Items.([]model.Customer); ok {
			return items, p.HasMore, nil
		}
		// unusable entry; fall through to the store
	}
	items, hasMore, err := s.store.ListCustomers(ctx, page, pageSize)
	if err != nil {
		return nil, false, err
	}
	s.cache.Put(cache.Customers, "", page, items, hasMore)
	return items, hasMore, nil
}

// ListTransactions pages history for one customer, or all customers via
// the ledger.AllCustomers sentinel.
func (s *LedgerService) ListTransactions(ctx context.Context, customerID string, page, pageSize int, forceRefresh bool) ([]model.Transaction, bool, error) {
	if forceRefresh {
		s.cache.Invalidate(cache.Transactions)
	} else if p, ok := s.cache.Get(cache.Transactions, customerID, page); ok {
		if items, ok := p.Items.([]model.Transaction); ok {
			return items, p.HasMore, nil
		}
	}
	items, hasMore, err := s.store.ListTransactions(ctx, customerID, page, pageSize)
	if err != nil {
		return nil, false, err
	}
	s.cache.Put(cache.Transactions, customerID, page, items, hasMore)
	return items, hasMore, nil
}

// SearchCustomers delegates to the store's indexed lookup and caches by
// term.
func (s *LedgerService) SearchCustomers(ctx context.Context, term string) ([]model.Customer, error) {
	if p, ok := s.cache.Get(cache.Search, term, 1); ok {
		if items, ok := p.Items.([]model.Customer); ok {
			return items, nil
		}
	}
	items, err := s.store.SearchCustomers(ctx, term)
	if err != nil {
		return nil, err
	}
	s.cache.Put(cache.Search, term, 1, items, false)
	return items, nil
}

// FilterCustomers applies the in-memory field matcher to a fetched page.
func (s *LedgerService) FilterCustomers(ctx context.Context, query string, page, pageSize int) ([]model.Customer, bool, error) {
	items, hasMore, err := s.ListCustomers(ctx, page, pageSize, false)
	if err != nil {
		return nil, false, err
	}
	return search.FilterCustomers(items, query), hasMore, nil
}

// FilterTransactions applies the in-memory field matcher to a fetched
// page of history.
func (s *LedgerService) FilterTransactions(ctx context.Context, customerID, query string, page, pageSize int) ([]model.Transaction, bool, error) {
	items, hasMore, err := s.ListTransactions(ctx, customerID, page, pageSize, false)
	if err != nil {
		return nil, false, err
	}
	return search.FilterTransactions(items, query), hasMore, nil
}

// CurrentPrices returns the latest snapshot, or the stock defaults when
// no price has been recorded yet.
func (s *LedgerService) CurrentPrices(ctx context.Context) (*model.PriceSnapshot, error) {
	if p, ok := s.cache.Get(cache.Prices, "current", 1); ok {
		if snap, ok := p.Items.(*model.PriceSnapshot); ok {
			return snap, nil
		}
	}
	snap, err := s.store.CurrentPrices(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		snap = &model.PriceSnapshot{
			RegularPrice:  model.DefaultRegularPrice,
			AlkalinePrice: model.DefaultAlkalinePrice,
			UpdatedAt:     time.Now().UTC(),
		}
	} else if err != nil {
		return nil, err
	}
	s.cache.Put(cache.Prices, "current", 1, snap, false)
	return snap, nil
}

// PriceHistory returns up to limit snapshots, newest first.
func (s *LedgerService) PriceHistory(ctx context.Context, limit int) ([]model.PriceSnapshot, error) {
	return s.store.PriceHistory(ctx, limit)
}

// UpdatePrices appends a price snapshot and refreshes the cached
// current price.
func (s *LedgerService) UpdatePrices(ctx context.Context, regular, alkaline decimal.Decimal, updatedBy, notes string) (*model.PriceSnapshot, error) {
	snap, err := s.store.RecordPriceChange(ctx, regular, alkaline, updatedBy, notes)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(cache.Prices)
	s.log.Infow("prices updated",
		"regular", regular.StringFixed(2), "alkaline", alkaline.StringFixed(2), "by", updatedBy)
	return snap, nil
}

// Export dumps the whole ledger for backup.
func (s *LedgerService) Export(ctx context.Context) (*ledger.Snapshot, error) {
	return s.store.ExportSnapshot(ctx)
}

// Import restores a backup (upsert by id) and drops every cache.
func (s *LedgerService) Import(ctx context.Context, snap *ledger.Snapshot) error {
	if err := s.store.ImportSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	s.log.Infow("snapshot imported",
		"customers", len(snap.Customers), "transactions", len(snap.Transactions))
	return nil
}

// Store exposes the underlying store (test helper).
func (s *LedgerService) Store() ledger.Store { return s.store }
