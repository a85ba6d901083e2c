/*
Package ledger provides the finance domain: transactions, invoices, and the
invoice aggregation workflow.

PURPOSE:
  This package holds the domain types and the rules that act on them.
  Persistence is behind the Store interface (store.go); HTTP and GraphQL
  live in the api package. Nothing in here knows about SQL or requests.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amounts rounded to two places
  - Transaction: a single income/expense entry owned by one user
  - Invoice: a billing document whose total is derived from its transactions
  - Actor: the resolved caller identity (or anonymous)

DESIGN PRINCIPLES:
  1. Precision: amounts use decimal.Decimal, never float64
  2. Type Safety: distinct ID types for users, transactions and invoices
  3. Ownership: every read and write is scoped to the acting user

SEE ALSO:
  - aggregator.go: Invoice creation (the only multi-statement workflow)
  - query.go: Read-side projections
  - errors.go: Error taxonomy
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64
type TransactionID int64
type InvoiceID int64

// Actor is the identity a request runs as. The zero value is anonymous.
type Actor struct {
	UserID UserID
}

// Anonymous is the actor for requests without a valid credential.
var Anonymous = Actor{}

// ActorFor returns the actor for an authenticated user.
func ActorFor(id UserID) Actor { return Actor{UserID: id} }

// Authenticated reports whether the actor resolved to a user.
func (a Actor) Authenticated() bool { return a.UserID > 0 }

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of fractional digits kept on amounts and totals.
const MoneyPlaces = 2

// NormalizeMoney rounds an amount to MoneyPlaces.
func NormalizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// SumAmounts adds the amounts of txs.
func SumAmounts(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return NormalizeMoney(total)
}

// =============================================================================
// DATES
// =============================================================================

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate renders a day as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID           UserID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// TRANSACTION - A single ledger entry (not a storage unit of work)
// =============================================================================

type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

type Transaction struct {
	ID          TransactionID
	UserID      UserID
	InvoiceID   *InvoiceID // nil until aggregated into an invoice
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Kind        Kind
	Category    string
	CreatedAt   time.Time
}

// Invoiced reports whether the transaction is linked to an invoice.
func (t Transaction) Invoiced() bool { return t.InvoiceID != nil }

// TransactionInput holds the fields for creating a transaction.
type TransactionInput struct {
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Kind        Kind
	Category    string
}

// TransactionPatch holds a partial update. Nil fields are left unchanged.
type TransactionPatch struct {
	Description *string
	Amount      *decimal.Decimal
	Date        *time.Time
	Kind        *Kind
	Category    *string
}

// Apply returns tx with the patch applied.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.Description != nil {
		tx.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		tx.Amount = NormalizeMoney(*p.Amount)
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.Kind != nil {
		tx.Kind = *p.Kind
	}
	if p.Category != nil {
		tx.Category = strings.TrimSpace(*p.Category)
	}
	return tx
}

// ChangesAmount reports whether applying the patch to tx alters its amount.
func (p TransactionPatch) ChangesAmount(tx Transaction) bool {
	return p.Amount != nil && !NormalizeMoney(*p.Amount).Equal(tx.Amount)
}

// =============================================================================
// INVOICE
// =============================================================================

type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "PENDING"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type Invoice struct {
	ID          InvoiceID
	UserID      UserID
	Number      string
	ClientName  string
	ClientEmail string
	DueDate     time.Time
	Total       decimal.Decimal
	Status      InvoiceStatus
	CreatedAt   time.Time
}

// InvoiceRequest is the input to Aggregator.CreateInvoice.
type InvoiceRequest struct {
	TransactionIDs []TransactionID
	ClientName     string
	ClientEmail    string
	DueDate        time.Time
}
