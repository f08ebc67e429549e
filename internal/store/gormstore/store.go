// Package gormstore implements the ledger store on a relational
// database through gorm, with a Redis side-cache for balances and a
// transactional outbox for event publishing.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
)

const balanceCacheTTL = 5 * time.Minute

// Store implements ledger.Store on gorm. Atomicity of the paired
// transaction+balance write comes from the database transaction; a
// version column on customer rejects concurrent writers.
type Store struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// New constructs the store. rdb and writer may be nil; balance caching
// and event publishing are then skipped.
func New(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, rdb: rdb, writer: w, log: logger}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&model.Customer{},
		&model.Transaction{},
		&model.PriceSnapshot{},
		&model.OutboxEvent{},
	)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.ErrNotFound
	}
	return err
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

// CreateCustomer assigns ids and, for a positive initial balance,
// appends the opening fund transaction in the same database transaction.
func (s *Store) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*model.Customer, error) {
	if err := ledger.ValidateNewCustomer(nc); err != nil {
		return nil, err
	}
	var out model.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memberID, err := ledger.GenerateMembershipID(ctx, func(ctx context.Context, id string) (bool, error) {
			return membershipTaken(ctx, tx, id)
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
		if err := tx.Create(&out).Error; err != nil {
			return err
		}
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
			if err := tx.Create(&opening).Error; err != nil {
				return err
			}
		}
		return s.appendOutbox(tx, "Customer", out.ID, "CustomerCreated", map[string]interface{}{
			"membershipId": out.MembershipID,
			"balance":      out.Balance,
		})
	})
	if err != nil {
		return nil, err
	}
	s.cacheBalance(ctx, out.ID, out.Balance)
	return &out, nil
}

// GetCustomer reads one customer by its opaque id.
func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// UpdateCustomerProfile mutates name/phone/notes only.
func (s *Store) UpdateCustomerProfile(ctx context.Context, id string, upd ledger.ProfileUpdate) (*model.Customer, error) {
	fields := map[string]interface{}{}
	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
		}
		fields["name"] = *upd.Name
	}
	if upd.Phone != nil {
		fields["phone"] = *upd.Phone
	}
	if upd.Notes != nil {
		fields["notes"] = *upd.Notes
	}
	if len(fields) > 0 {
		res := s.db.WithContext(ctx).Model(&model.Customer{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ledger.ErrNotFound
		}
	}
	return s.GetCustomer(ctx, id)
}

func membershipTaken(ctx context.Context, tx *gorm.DB, membershipID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.Customer{}).
		Where("membership_id = ?", membershipID).Count(&n).Error
	return n > 0, err
}

// MembershipIDTaken is the generator's existence check.
func (s *Store) MembershipIDTaken(ctx context.Context, membershipID string) (bool, error) {
	return membershipTaken(ctx, s.db, membershipID)
}

// AppendTransaction is the paired write: new transaction row plus the
// customer's balance/lastTransaction update, committed together. The
// store trusts the caller on policy; it will happily persist a negative
// balance.
func (s *Store) AppendTransaction(ctx context.Context, customerID, typ string, amount decimal.Decimal, gallons decimal.NullDecimal, notes string) (*model.Transaction, *model.Customer, error) {
	if err := ledger.ValidateTransaction(typ, amount, gallons); err != nil {
		return nil, nil, err
	}
	var (
		txRow model.Transaction
		cust  model.Customer
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", customerID).First(&cust).Error; err != nil {
			return translate(err)
		}
		newBalance := cust.Balance.Sub(amount)
		if typ == model.TypeFund {
			newBalance = cust.Balance.Add(amount)
		}
		now := time.Now().UTC()
		txRow = model.Transaction{
			ID:              uuid.NewString(),
			CustomerID:      cust.ID,
			MembershipID:    cust.MembershipID,
			CustomerName:    cust.Name,
			Type:            typ,
			Amount:          amount,
			Gallons:         gallons,
			CustomerBalance: newBalance,
			Notes:           notes,
			CreatedAt:       now,
		}
		if err := tx.Create(&txRow).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Customer{}).
			Where("id = ? AND version = ?", cust.ID, cust.Version).
			Updates(map[string]interface{}{
				"balance":          newBalance,
				"version":          cust.Version + 1,
				"last_transaction": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ledger.ErrConflict
		}
		cust.Balance = newBalance
		cust.Version++
		cust.LastTransaction = &now
		return s.appendOutbox(tx, "Customer", cust.ID, "TransactionAppended", map[string]interface{}{
			"transactionId": txRow.ID,
			"type":          typ,
			"amount":        amount,
			"balance":       newBalance,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.cacheBalance(ctx, cust.ID, cust.Balance)
	return &txRow, &cust, nil
}

// Balance answers from Redis when possible, falling back to the row.
func (s *Store) Balance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	if s.rdb != nil {
		if str, err := s.rdb.Get(ctx, balanceKey(customerID)).Result(); err == nil {
			if bal, err := decimal.NewFromString(str); err == nil {
				return bal, nil
			}
		}
	}
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cacheBalance(ctx, customerID, c.Balance)
	return c.Balance, nil
}

func balanceKey(customerID string) string { return fmt.Sprintf("balance:%s", customerID) }

func (s *Store) cacheBalance(ctx context.Context, customerID string, bal decimal.Decimal) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, balanceKey(customerID), bal.String(), balanceCacheTTL).Err(); err != nil {
		s.log.Warnf("cache balance %s: %v", customerID, err)
	}
}

// ListCustomers pages by most recent activity. hasMore comes from
// fetching one row past pageSize and trimming it, avoiding a count
// query.
func (s *Store) ListCustomers(ctx context.Context, page, pageSize int) ([]model.Customer, bool, error) {
	if err := checkPage(page, pageSize); err != nil {
		return nil, false, err
	}
	var items []model.Customer
	err := s.db.WithContext(ctx).
		Order("last_transaction IS NULL, last_transaction DESC, id").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&items).Error
	if err != nil {
		return nil, false, err
	}
	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	return items, hasMore, nil
}

// ListTransactions pages history newest-first. ledger.AllCustomers
// returns every customer's transactions for the global history view.
func (s *Store) ListTransactions(ctx context.Context, customerID string, page, pageSize int) ([]model.Transaction, bool, error) {
	if err := checkPage(page, pageSize); err != nil {
		return nil, false, err
	}
	q := s.db.WithContext(ctx).Model(&model.Transaction{})
	if customerID != ledger.AllCustomers {
		q = q.Where("customer_id = ?", customerID)
	}
	var items []model.Transaction
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&items).Error
	if err != nil {
		return nil, false, err
	}
	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	return items, hasMore, nil
}

// SearchCustomers delegates to the database: exact membership-id match
// for an all-numeric term (left-padded to the id width), name prefix
// match otherwise.
func (s *Store) SearchCustomers(ctx context.Context, term string) ([]model.Customer, error) {
	var items []model.Customer
	q := s.db.WithContext(ctx)
	if ledger.IsNumeric(term) {
		q = q.Where("membership_id = ?", ledger.PadMembershipID(term))
	} else {
		q = q.Where(`name LIKE ? ESCAPE '\'`, escapeLike(term)+"%").Order("name")
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (s *Store) appendOutbox(tx *gorm.DB, aggregate, aggregateID, eventType string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.Create(&model.OutboxEvent{
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     string(body),
	}).Error
}
