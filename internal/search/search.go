// Package search implements in-memory matching over already-fetched
// customer and transaction slices. Store-delegated prefix search lives
// in the store implementations; this engine covers the broader
// field-by-field filtering the history and customer list views need.
package search

import (
	"strings"
	"time"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/model"
)

// FormatTimestamp renders a timestamp the way list rows display it,
// M/D/YYYY HH:MM, which is also the string date queries match against.
func FormatTimestamp(t time.Time) string {
	return t.Format("1/2/2006 15:04")
}

// MatchCustomer reports whether the customer matches query. Name
// matching is case-insensitive substring, except a single-character
// query matches name prefix only so one letter doesn't flood the list.
// Membership id, stringified balance and the last-transaction display
// string all match by substring.
func MatchCustomer(c model.Customer, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	name := strings.ToLower(c.Name)
	if len([]rune(q)) == 1 {
		if strings.HasPrefix(name, q) {
			return true
		}
	} else if strings.Contains(name, q) {
		return true
	}
	if strings.Contains(c.MembershipID, q) {
		return true
	}
	if strings.Contains(c.Balance.StringFixed(2), q) {
		return true
	}
	if c.LastTransaction != nil && strings.Contains(FormatTimestamp(*c.LastTransaction), q) {
		return true
	}
	return false
}

// FilterCustomers keeps the customers matching query, preserving order.
func FilterCustomers(customers []model.Customer, query string) []model.Customer {
	if strings.TrimSpace(query) == "" {
		return customers
	}
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if MatchCustomer(c, query) {
			out = append(out, c)
		}
	}
	return out
}

// MatchTransaction reports whether the transaction matches query.
// Beyond the customer name, queries can target the amount with a "$"
// prefix, the membership id with a "#" prefix, the transaction type,
// the gallon count, and the formatted date/time.
func MatchTransaction(t model.Transaction, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.CustomerName), q) {
		return true
	}
	if strings.HasPrefix(q, "$") {
		return strings.Contains(t.Amount.StringFixed(2), strings.TrimPrefix(q, "$"))
	}
	if strings.HasPrefix(q, "#") {
		return strings.Contains(t.MembershipID, strings.TrimPrefix(q, "#"))
	}
	if strings.Contains(t.Type, q) {
		return true
	}
	if ledger.IsNumeric(q) {
		if strings.Contains(t.Amount.StringFixed(2), q) || strings.Contains(t.MembershipID, q) {
			return true
		}
		if t.Gallons.Valid && strings.Contains(t.Gallons.Decimal.String(), q) {
			return true
		}
	}
	if strings.Contains(FormatTimestamp(t.CreatedAt), q) {
		return true
	}
	return false
}

// FilterTransactions keeps the transactions matching query, preserving
// order.
func FilterTransactions(txs []model.Transaction, query string) []model.Transaction {
	if strings.TrimSpace(query) == "" {
		return txs
	}
	out := make([]model.Transaction, 0, len(txs))
	for _, t := range txs {
		if MatchTransaction(t, query) {
			out = append(out, t)
		}
	}
	return out
}
