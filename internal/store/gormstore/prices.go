package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
)

// CurrentPrices returns the newest snapshot or ErrNotFound when no
// price has ever been recorded.
func (s *Store) CurrentPrices(ctx context.Context) (*model.PriceSnapshot, error) {
	var p model.PriceSnapshot
	err := s.db.WithContext(ctx).Order("updated_at DESC").First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// PriceHistory returns up to limit snapshots, newest first.
func (s *Store) PriceHistory(ctx context.Context, limit int) ([]model.PriceSnapshot, error) {
	if limit < 1 {
		return nil, &ledger.ValidationError{Field: "limit", Reason: "must be >= 1"}
	}
	var items []model.PriceSnapshot
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&items).Error
	return items, err
}

// RecordPriceChange appends a snapshot; being the newest, it becomes
// the current price the moment the insert commits.
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
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snap).Error; err != nil {
			return err
		}
		return s.appendOutbox(tx, "Price", snap.ID, "PriceChanged", map[string]interface{}{
			"regularPrice":  regular,
			"alkalinePrice": alkaline,
		})
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
