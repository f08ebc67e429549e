// Package filestore implements the ledger store as a single JSON
// snapshot file guarded by a read-write mutex. Every write mutates the
// in-memory snapshot and rewrites the file, so the paired
// transaction+balance update is naturally atomic: it happens inside one
// critical section and one file replace.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
)

const priceHistoryCap = 50

type fileData struct {
	Customers    map[string]model.Customer    `json:"customers"`
	Transactions map[string]model.Transaction `json:"transactions"`
	Settings     ledger.SettingsSnapshot      `json:"settings"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
}

// Store implements ledger.Store on a local JSON file.
type Store struct {
	mu   sync.RWMutex
	path string
	data *fileData
}

// Open loads the snapshot file, creating an empty one if missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.data = &fileData{
			Customers:    map[string]model.Customer{},
			Transactions: map[string]model.Transaction{},
			UpdatedAt:    time.Now().UTC(),
		}
		return s, s.flushLocked()
	}
	if err != nil {
		return nil, err
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data.Customers == nil {
		data.Customers = map[string]model.Customer{}
	}
	if data.Transactions == nil {
		data.Transactions = map[string]model.Transaction{}
	}
	s.data = &data
	return s, nil
}

// flushLocked rewrites the file via temp+rename so a crash mid-write
// leaves the previous snapshot intact. Callers must hold the write lock.
func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) withWrite(ctx context.Context, fn func(*fileData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := fn(s.data); err != nil {
		return err
	}
	s.data.UpdatedAt = time.Now().UTC()
	return s.flushLocked()
}

func (s *Store) withRead(fn func(*fileData)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// CreateCustomer assigns ids and appends the opening fund transaction
// when the initial balance is positive, all under one critical section.
func (s *Store) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*model.Customer, error) {
	if err := ledger.ValidateNewCustomer(nc); err != nil {
		return nil, err
	}
	var out model.Customer
	err := s.withWrite(ctx, func(d *fileData) error {
		memberID, err := ledger.GenerateMembershipID(ctx, func(_ context.Context, id string) (bool, error) {
			return membershipTakenLocked(d, id), nil
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		out = model.Customer{
			ID:              uuid.NewString(),
			MembershipID:    memberID,
			Name:            nc.Name,
			Phone:           nc.Phone,
			Notes:           nc.Notes,
			Balance:         nc.InitialBalance,
			LastTransaction: &now,
			CreatedAt:       now,
		}
		d.Customers[out.ID] = out
		if nc.InitialBalance.IsPositive() {
			opening := model.Transaction{
				ID:              uuid.NewString(),
				CustomerID:      out.ID,
				MembershipID:    out.MembershipID,
				CustomerName:    out.Name,
				Type:            model.TypeFund,
				Amount:          nc.InitialBalance,
				CustomerBalance: nc.InitialBalance,
				Notes:           "Initial balance",
				CreatedAt:       now,
			}
			d.Transactions[opening.ID] = opening
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func membershipTakenLocked(d *fileData, membershipID string) bool {
	for _, c := range d.Customers {
		if c.MembershipID == membershipID {
			return true
		}
	}
	return false
}

func (s *Store) GetCustomer(_ context.Context, id string) (*model.Customer, error) {
	var out *model.Customer
	s.withRead(func(d *fileData) {
		if c, ok := d.Customers[id]; ok {
			out = &c
		}
	})
	if out == nil {
		return nil, ledger.ErrNotFound
	}
	return out, nil
}

func (s *Store) UpdateCustomerProfile(ctx context.Context, id string, upd ledger.ProfileUpdate) (*model.Customer, error) {
	if upd.Name != nil && *upd.Name == "" {
		return nil, &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	var out model.Customer
	err := s.withWrite(ctx, func(d *fileData) error {
		c, ok := d.Customers[id]
		if !ok {
			return ledger.ErrNotFound
		}
		if upd.Name != nil {
			c.Name = *upd.Name
		}
		if upd.Phone != nil {
			c.Phone = *upd.Phone
		}
		if upd.Notes != nil {
			c.Notes = *upd.Notes
		}
		d.Customers[id] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) MembershipIDTaken(_ context.Context, membershipID string) (bool, error) {
	var taken bool
	s.withRead(func(d *fileData) {
		taken = membershipTakenLocked(d, membershipID)
	})
	return taken, nil
}

// AppendTransaction writes the transaction record and the customer's
// new balance in the same critical section and file flush. The mutex
// serializes writers, so the version bump here is bookkeeping rather
// than a conflict check.
func (s *Store) AppendTransaction(ctx context.Context, customerID, typ string, amount decimal.Decimal, gallons decimal.NullDecimal, notes string) (*model.Transaction, *model.Customer, error) {
	if err := ledger.ValidateTransaction(typ, amount, gallons); err != nil {
		return nil, nil, err
	}
	var (
		txRow model.Transaction
		cust  model.Customer
	)
	err := s.withWrite(ctx, func(d *fileData) error {
		c, ok := d.Customers[customerID]
		if !ok {
			return ledger.ErrNotFound
		}
		newBalance := c.Balance.Sub(amount)
		if typ == model.TypeFund {
			newBalance = c.Balance.Add(amount)
		}
		now := time.Now().UTC()
		txRow = model.Transaction{
			ID:              uuid.NewString(),
			CustomerID:      c.ID,
			MembershipID:    c.MembershipID,
			CustomerName:    c.Name,
			Type:            typ,
			Amount:          amount,
			Gallons:         gallons,
			CustomerBalance: newBalance,
			Notes:           notes,
			CreatedAt:       now,
		}
		d.Transactions[txRow.ID] = txRow
		c.Balance = newBalance
		c.Version++
		c.LastTransaction = &now
		d.Customers[c.ID] = c
		cust = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &txRow, &cust, nil
}

func (s *Store) Balance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Balance, nil
}

func checkPage(page, pageSize int) error {
	if page < 1 {
		return &ledger.ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	if pageSize < 1 {
		return &ledger.ValidationError{Field: "pageSize", Reason: "must be >= 1"}
	}
	return nil
}

func slicePage[T any](items []T, page, pageSize int) ([]T, bool) {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, false
	}
	end := start + pageSize
	if end >= len(items) {
		return items[start:], false
	}
	return items[start:end], true
}

func (s *Store) ListCustomers(_ context.Context, page, pageSize int) ([]model.Customer, bool, error) {
	if err := checkPage(page, pageSize); err != nil {
		return nil, false, err
	}
	var all []model.Customer
	s.withRead(func(d *fileData) {
		for _, c := range d.Customers {
			all = append(all, c)
		}
	})
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].LastTransaction, all[j].LastTransaction
		switch {
		case ti == nil && tj == nil:
			return all[i].ID < all[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		}
		return all[i].ID < all[j].ID
	})
	items, hasMore := slicePage(all, page, pageSize)
	return items, hasMore, nil
}

func (s *Store) ListTransactions(_ context.Context, customerID string, page, pageSize int) ([]model.Transaction, bool, error) {
	if err := checkPage(page, pageSize); err != nil {
		return nil, false, err
	}
	var all []model.Transaction
	s.withRead(func(d *fileData) {
		for _, t := range d.Transactions {
			if customerID == ledger.AllCustomers || t.CustomerID == customerID {
				all = append(all, t)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	items, hasMore := slicePage(all, page, pageSize)
	return items, hasMore, nil
}

func (s *Store) SearchCustomers(_ context.Context, term string) ([]model.Customer, error) {
	numeric := ledger.IsNumeric(term)
	padded := ledger.PadMembershipID(term)
	var out []model.Customer
	s.withRead(func(d *fileData) {
		for _, c := range d.Customers {
			if numeric {
				if c.MembershipID == padded {
					out = append(out, c)
				}
			} else if strings.HasPrefix(c.Name, term) {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CurrentPrices(_ context.Context) (*model.PriceSnapshot, error) {
	var out *model.PriceSnapshot
	s.withRead(func(d *fileData) {
		if d.Settings.WaterPrices != nil {
			p := *d.Settings.WaterPrices
			out = &p
		}
	})
	if out == nil {
		return nil, ledger.ErrNotFound
	}
	return out, nil
}

func (s *Store) PriceHistory(_ context.Context, limit int) ([]model.PriceSnapshot, error) {
	if limit < 1 {
		return nil, &ledger.ValidationError{Field: "limit", Reason: "must be >= 1"}
	}
	var out []model.PriceSnapshot
	s.withRead(func(d *fileData) {
		history := d.Settings.PriceHistory
		if len(history) > limit {
			history = history[:limit]
		}
		out = append(out, history...)
	})
	return out, nil
}

// RecordPriceChange prepends the snapshot to the history (newest first,
// capped) and makes it the current price.
func (s *Store) RecordPriceChange(ctx context.Context, regular, alkaline decimal.Decimal, updatedBy, notes string) (*model.PriceSnapshot, error) {
	if regular.IsNegative() || alkaline.IsNegative() {
		return nil, &ledger.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	snap := model.PriceSnapshot{
		ID:            uuid.NewString(),
		RegularPrice:  regular,
		AlkalinePrice: alkaline,
		UpdatedBy:     updatedBy,
		Notes:         notes,
		UpdatedAt:     time.Now().UTC(),
	}
	err := s.withWrite(ctx, func(d *fileData) error {
		d.Settings.WaterPrices = &snap
		history := append([]model.PriceSnapshot{snap}, d.Settings.PriceHistory...)
		if len(history) > priceHistoryCap {
			history = history[:priceHistoryCap]
		}
		d.Settings.PriceHistory = history
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) ExportSnapshot(_ context.Context) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{
		Customers:    map[string]model.Customer{},
		Transactions: map[string]model.Transaction{},
		BackupDate:   time.Now().UTC(),
		Version:      "1.0",
	}
	s.withRead(func(d *fileData) {
		for id, c := range d.Customers {
			snap.Customers[id] = c
		}
		for id, t := range d.Transactions {
			snap.Transactions[id] = t
		}
		snap.Settings.PriceHistory = append(snap.Settings.PriceHistory, d.Settings.PriceHistory...)
		if d.Settings.WaterPrices != nil {
			p := *d.Settings.WaterPrices
			snap.Settings.WaterPrices = &p
		}
	})
	return snap, nil
}

func (s *Store) ImportSnapshot(ctx context.Context, snap *ledger.Snapshot) error {
	if snap == nil {
		return &ledger.ValidationError{Field: "snapshot", Reason: "must not be nil"}
	}
	for _, c := range snap.Customers {
		if c.ID == "" || c.Name == "" || c.MembershipID == "" {
			return &ledger.ValidationError{Field: "customer", Reason: "id, name and membershipId are required"}
		}
	}
	for _, t := range snap.Transactions {
		if t.ID == "" || t.CustomerID == "" {
			return &ledger.ValidationError{Field: "transaction", Reason: "id and customerId are required"}
		}
		if err := ledger.ValidateTransaction(t.Type, t.Amount, t.Gallons); err != nil {
			return err
		}
	}
	return s.withWrite(ctx, func(d *fileData) error {
		for id, c := range snap.Customers {
			d.Customers[id] = c
		}
		for id, t := range snap.Transactions {
			d.Transactions[id] = t
		}
		if snap.Settings.WaterPrices != nil {
			p := *snap.Settings.WaterPrices
			d.Settings.WaterPrices = &p
		}
		if len(snap.Settings.PriceHistory) > 0 {
			d.Settings.PriceHistory = append([]model.PriceSnapshot(nil), snap.Settings.PriceHistory...)
		}
		return nil
	})
}
