package search

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aquadepot/ledger-service/internal/model"
)

func customer(name, memberID, balance string) model.Customer {
	bal, _ := decimal.NewFromString(balance)
	last := time.Date(2024, 3, 7, 14, 30, 0, 0, time.UTC)
	return model.Customer{
		Name:            name,
		MembershipID:    memberID,
		Balance:         bal,
		LastTransaction: &last,
	}
}

func TestMatchCustomer_NameSubstring(t *testing.T) {
	c := customer("Maria Santos", "12345", "50.00")

	assert.True(t, MatchCustomer(c, "aria"))
	assert.True(t, MatchCustomer(c, "SANTOS"))
	assert.False(t, MatchCustomer(c, "jose"))
}

func TestMatchCustomer_SingleCharIsPrefixOnly(t *testing.T) {
	c := customer("Maria Santos", "12345", "50.00")

	// "m" prefixes the name, "a" only appears inside it
	assert.True(t, MatchCustomer(c, "m"))
	assert.False(t, MatchCustomer(c, "x"))

	// single characters still match membership id and balance substrings
	assert.True(t, MatchCustomer(c, "3"))
}

func TestMatchCustomer_MembershipAndBalance(t *testing.T) {
	c := customer("Maria Santos", "12345", "50.25")

	assert.True(t, MatchCustomer(c, "234"))
	assert.True(t, MatchCustomer(c, "50.25"))
	assert.False(t, MatchCustomer(c, "99999"))
}

func TestMatchCustomer_LastTransactionDisplay(t *testing.T) {
	c := customer("Maria Santos", "12345", "50.00")
	assert.True(t, MatchCustomer(c, "3/7/2024"))
	assert.True(t, MatchCustomer(c, "14:30"))
}

func tx(name, memberID, typ, amount, gallons string) model.Transaction {
	amt, _ := decimal.NewFromString(amount)
	t := model.Transaction{
		CustomerName: name,
		MembershipID: memberID,
		Type:         typ,
		Amount:       amt,
		CreatedAt:    time.Date(2024, 3, 7, 9, 15, 0, 0, time.UTC),
	}
	if gallons != "" {
		g, _ := decimal.NewFromString(gallons)
		t.Gallons = decimal.NullDecimal{Decimal: g, Valid: true}
	}
	return t
}

func TestMatchTransaction_Prefixes(t *testing.T) {
	row := tx("Maria Santos", "12345", model.TypeRegular, "7.50", "5")

	assert.True(t, MatchTransaction(row, "$7.50"))
	assert.True(t, MatchTransaction(row, "$7.5"))
	assert.False(t, MatchTransaction(row, "$9"))

	assert.True(t, MatchTransaction(row, "#12345"))
	assert.True(t, MatchTransaction(row, "#234"))
	assert.False(t, MatchTransaction(row, "#999"))
}

func TestMatchTransaction_TypeNameDate(t *testing.T) {
	row := tx("Maria Santos", "12345", model.TypeAlkaline, "10.00", "5")

	assert.True(t, MatchTransaction(row, "alkaline"))
	assert.True(t, MatchTransaction(row, "maria"))
	assert.True(t, MatchTransaction(row, "3/7/2024"))
	assert.False(t, MatchTransaction(row, "fund"))
}

func TestMatchTransaction_NumericQuery(t *testing.T) {
	row := tx("Maria Santos", "77777", model.TypeRegular, "7.50", "5")

	// bare numbers hit amount, membership id and gallons
	assert.True(t, MatchTransaction(row, "50"))
	assert.True(t, MatchTransaction(row, "777"))
	assert.True(t, MatchTransaction(row, "5"))
	assert.False(t, MatchTransaction(row, "333"))
}

func TestFilterPreservesOrder(t *testing.T) {
	rows := []model.Transaction{
		tx("Alice", "11111", model.TypeRegular, "3.00", "2"),
		tx("Bob", "22222", model.TypeFund, "20.00", ""),
		tx("Alina", "33333", model.TypeRegular, "6.00", "4"),
	}
	got := FilterTransactions(rows, "ali")
	assert.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].CustomerName)
	assert.Equal(t, "Alina", got[1].CustomerName)

	assert.Len(t, FilterTransactions(rows, ""), 3)
}
