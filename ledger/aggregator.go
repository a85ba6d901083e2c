/*
aggregator.go - Invoice creation from a set of existing transactions

PURPOSE:
  The Aggregator turns a caller's selected transactions into an invoice:
  it sums their amounts, mints an invoice numbered INV-<ULID>, and links the
  transactions to it. Steps run inside one TxStore.WithTx unit of work, so a
  failure at any point leaves no invoice row and no relinked transaction.

VALIDATION ORDER:
  1. Anonymous caller             -> ErrUnauthenticated
  2. Empty ID set / bad client    -> ErrInvalidArgument
  3. IDs not owned by the caller  -> OwnershipPolicy decides
  4. IDs already invoiced         -> RelinkPolicy decides

CONCURRENCY:
  WithTx takes the store's write lock before the first read, so the
  load-check-insert-link sequence cannot interleave with another writer.
  The link UPDATE repeats the ownership and unlinked checks in its WHERE
  clause; a short row count means the selection moved underneath us and the
  whole unit of work is rolled back with ErrConflict.

AFTER COMMIT:
  The Notifier (if any) is told about the new invoice. Notification failures
  are logged; the invoice already exists and is returned.

SEE ALSO:
  - store.go: TxStore, Link
  - numbering.go: Invoice numbers
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// =============================================================================
// POLICIES
// =============================================================================

// OwnershipPolicy decides what happens to requested IDs that are missing or
// owned by another user.
type OwnershipPolicy string

const (
	// OwnershipStrict rejects the whole request with a ForeignTransactionsError.
	OwnershipStrict OwnershipPolicy = "strict"
	// OwnershipLenient drops those IDs from both the sum and the linkage.
	OwnershipLenient OwnershipPolicy = "lenient"
)

func (p OwnershipPolicy) Valid() bool {
	return p == OwnershipStrict || p == OwnershipLenient
}

// RelinkPolicy decides what happens to transactions already linked to an
// invoice.
type RelinkPolicy string

const (
	// RelinkForbid rejects the request with an AlreadyInvoicedError.
	RelinkForbid RelinkPolicy = "forbid"
	// RelinkAllow moves the transactions to the new invoice. The previous
	// invoice keeps its original total.
	RelinkAllow RelinkPolicy = "allow"
)

func (p RelinkPolicy) Valid() bool {
	return p == RelinkForbid || p == RelinkAllow
}

// MaxInvoiceTransactions caps the distinct IDs one invoice may aggregate.
// It keeps the IN (...) lists well under SQLite's bound-parameter limit.
const MaxInvoiceTransactions = 1000

// Notifier is told about invoices after they are committed.
type Notifier interface {
	InvoiceCreated(ctx context.Context, inv Invoice, txIDs []TransactionID) error
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Store     TxStore
	Numbers   Numberer
	Notifier  Notifier
	Ownership OwnershipPolicy
	Relink    RelinkPolicy
	Logger    *slog.Logger
}

// NewAggregator returns an aggregator with strict ownership, forbidden
// relinking and ULID numbering.
func NewAggregator(store TxStore) *Aggregator {
	return &Aggregator{
		Store:     store,
		Numbers:   ULIDNumberer{},
		Ownership: OwnershipStrict,
		Relink:    RelinkForbid,
		Logger:    slog.Default(),
	}
}

// CreateInvoice aggregates req.TransactionIDs into a new PENDING invoice.
func (a *Aggregator) CreateInvoice(ctx context.Context, actor Actor, req InvoiceRequest) (Invoice, error) {
	if !actor.Authenticated() {
		return Invoice{}, ErrUnauthenticated
	}
	req, err := normalizeInvoiceRequest(req)
	if err != nil {
		return Invoice{}, err
	}

	var (
		created Invoice
		linked  []TransactionID
	)
	err = a.Store.WithTx(ctx, func(s Store) error {
		rows, err := s.TransactionsByIDs(ctx, req.TransactionIDs)
		if err != nil {
			return err
		}

		matched, err := a.selectTransactions(actor, req.TransactionIDs, rows)
		if err != nil {
			return err
		}

		inv, err := s.InsertInvoice(ctx, Invoice{
			UserID:      actor.UserID,
			Number:      a.Numbers.Next(time.Now().UTC()),
			ClientName:  req.ClientName,
			ClientEmail: req.ClientEmail,
			DueDate:     req.DueDate,
			Total:       SumAmounts(matched),
			Status:      StatusPending,
		})
		if err != nil {
			return err
		}

		ids := transactionIDs(matched)
		n, err := s.LinkTransactions(ctx, Link{
			InvoiceID:    inv.ID,
			UserID:       actor.UserID,
			IDs:          ids,
			OnlyUnlinked: a.Relink == RelinkForbid,
		})
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%w: linked %d of %d transactions", ErrConflict, n, len(ids))
		}

		created, linked = inv, ids
		return nil
	})
	if err != nil {
		return Invoice{}, Storage("create invoice", err)
	}

	a.logger().InfoContext(ctx, "Invoice created",
		"invoice_id", created.ID,
		"number", created.Number,
		"user_id", actor.UserID,
		"transactions", len(linked),
		"total", created.Total.StringFixed(MoneyPlaces))

	if a.Notifier != nil {
		if err := a.Notifier.InvoiceCreated(ctx, created, linked); err != nil {
			a.logger().WarnContext(ctx, "Invoice notification failed",
				"invoice_id", created.ID, "error", err)
		}
	}

	return created, nil
}

// selectTransactions applies the ownership and relink policies to the rows
// found for the requested IDs and returns the ones to aggregate.
func (a *Aggregator) selectTransactions(actor Actor, requested []TransactionID, rows []Transaction) ([]Transaction, error) {
	owned := make(map[TransactionID]Transaction, len(rows))
	for _, tx := range rows {
		if tx.UserID == actor.UserID {
			owned[tx.ID] = tx
		}
	}

	var (
		matched  []Transaction
		foreign  []TransactionID
		invoiced []TransactionID
	)
	for _, id := range requested {
		tx, ok := owned[id]
		if !ok {
			foreign = append(foreign, id)
			continue
		}
		if tx.Invoiced() {
			invoiced = append(invoiced, id)
		}
		matched = append(matched, tx)
	}

	if len(foreign) > 0 && a.Ownership != OwnershipLenient {
		return nil, &ForeignTransactionsError{IDs: foreign}
	}
	if len(matched) == 0 {
		return nil, invalid("transactions", "none of the requested transactions belong to the caller")
	}
	if len(invoiced) > 0 && a.Relink != RelinkAllow {
		return nil, &AlreadyInvoicedError{IDs: invoiced}
	}
	return matched, nil
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// =============================================================================
// HELPERS
// =============================================================================

func normalizeInvoiceRequest(req InvoiceRequest) (InvoiceRequest, error) {
	req.TransactionIDs = dedupeIDs(req.TransactionIDs)
	if len(req.TransactionIDs) == 0 {
		return req, invalid("transactions", "at least one transaction required")
	}
	if len(req.TransactionIDs) > MaxInvoiceTransactions {
		return req, invalid("transactions", fmt.Sprintf("at most %d transactions per invoice", MaxInvoiceTransactions))
	}

	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		return req, invalid("clientName", "required")
	}

	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if err := ValidateEmail(req.ClientEmail); err != nil {
		return req, invalid("clientEmail", err.Error())
	}

	if req.DueDate.IsZero() {
		return req, invalid("dueDate", "required")
	}
	return req, nil
}

// dedupeIDs drops repeated IDs, keeping first-seen order.
func dedupeIDs(ids []TransactionID) []TransactionID {
	seen := make(map[TransactionID]struct{}, len(ids))
	out := make([]TransactionID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func transactionIDs(txs []Transaction) []TransactionID {
	ids := make([]TransactionID, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

// ValidateEmail accepts a bare addr-spec (no display name, no brackets).
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("malformed email address")
	}
	return nil
}
