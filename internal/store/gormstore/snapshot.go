package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
)

const snapshotVersion = "1.0"

// ExportSnapshot dumps every collection into the backup structure.
func (s *Store) ExportSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	var (
		customers []model.Customer
		txs       []model.Transaction
		prices    []model.PriceSnapshot
	)
	db := s.db.WithContext(ctx)
	if err := db.Find(&customers).Error; err != nil {
		return nil, err
	}
	if err := db.Find(&txs).Error; err != nil {
		return nil, err
	}
	if err := db.Order("updated_at DESC").Find(&prices).Error; err != nil {
		return nil, err
	}
	snap := &ledger.Snapshot{
		Customers:    make(map[string]model.Customer, len(customers)),
		Transactions: make(map[string]model.Transaction, len(txs)),
		BackupDate:   time.Now().UTC(),
		Version:      snapshotVersion,
	}
	for _, c := range customers {
		snap.Customers[c.ID] = c
	}
	for _, t := range txs {
		snap.Transactions[t.ID] = t
	}
	snap.Settings.PriceHistory = prices
	if len(prices) > 0 {
		current := prices[0]
		snap.Settings.WaterPrices = &current
	}
	return snap, nil
}

// ImportSnapshot upserts every record by id in one transaction. Fields
// are validated like live writes; balances are trusted as-is, no
// recomputation from history.
func (s *Store) ImportSnapshot(ctx context.Context, snap *ledger.Snapshot) error {
	if snap == nil {
		return &ledger.ValidationError{Field: "snapshot", Reason: "must not be nil"}
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}
		for _, c := range snap.Customers {
			cc := c
			if err := tx.Clauses(upsert).Create(&cc).Error; err != nil {
				return err
			}
		}
		for _, t := range snap.Transactions {
			tt := t
			if err := tx.Clauses(upsert).Create(&tt).Error; err != nil {
				return err
			}
		}
		for _, p := range snap.Settings.PriceHistory {
			pp := p
			if err := tx.Clauses(upsert).Create(&pp).Error; err != nil {
				return err
			}
		}
		// the current price may not be part of the history (older
		// exports carried only the live snapshot); keep it either way
		if wp := snap.Settings.WaterPrices; wp != nil && !priceInHistory(snap, wp.ID) {
			cp := *wp
			if err := tx.Clauses(upsert).Create(&cp).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Imported balances supersede anything cached.
	if s.rdb != nil {
		for id, c := range snap.Customers {
			s.cacheBalance(ctx, id, c.Balance)
		}
	}
	return nil
}

func validateSnapshot(snap *ledger.Snapshot) error {
	for id, c := range snap.Customers {
		if id == "" || c.ID == "" {
			return &ledger.ValidationError{Field: "customer.id", Reason: "must not be empty"}
		}
		if c.Name == "" {
			return &ledger.ValidationError{Field: "customer.name", Reason: "must not be empty"}
		}
		if c.MembershipID == "" {
			return &ledger.ValidationError{Field: "customer.membershipId", Reason: "must not be empty"}
		}
	}
	for id, t := range snap.Transactions {
		if id == "" || t.ID == "" {
			return &ledger.ValidationError{Field: "transaction.id", Reason: "must not be empty"}
		}
		if t.CustomerID == "" {
			return &ledger.ValidationError{Field: "transaction.customerId", Reason: "must not be empty"}
		}
		if err := ledger.ValidateTransaction(t.Type, t.Amount, t.Gallons); err != nil {
			return err
		}
	}
	for _, p := range snap.Settings.PriceHistory {
		if p.RegularPrice.IsNegative() || p.AlkalinePrice.IsNegative() {
			return &ledger.ValidationError{Field: "price", Reason: "must not be negative"}
		}
	}
	if wp := snap.Settings.WaterPrices; wp != nil {
		if wp.RegularPrice.IsNegative() || wp.AlkalinePrice.IsNegative() {
			return &ledger.ValidationError{Field: "price", Reason: "must not be negative"}
		}
	}
	return nil
}

func priceInHistory(snap *ledger.Snapshot, id string) bool {
	for _, p := range snap.Settings.PriceHistory {
		if p.ID == id {
			return true
		}
	}
	return false
}
