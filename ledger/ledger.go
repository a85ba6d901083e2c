/*
ledger.go - Single-row writes on transactions and invoices

PURPOSE:
  Create, edit and delete transactions; change invoice status; delete
  invoices. These are the plain CRUD paths next to the Aggregator.

INVOICED TRANSACTIONS:
  An invoice's total is fixed at creation from its linked amounts. To keep
  that true, a linked transaction's amount cannot change and the row cannot
  be deleted (ErrConflict). Description, date, kind and category stay
  editable. The check and the write share one unit of work.

INVOICE CANCELLATION:
  Moving an invoice to CANCELLED voids it: its transactions are unlinked in
  the same unit of work and may be aggregated into a new invoice. The
  cancelled invoice keeps its number and total. CANCELLED is terminal.

INVOICE DELETION:
  Linked transactions are unlinked (invoice_id = NULL) and survive; the
  invoice row is removed in the same unit of work.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
)

type Ledger struct {
	Store TxStore
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransaction records a new transaction for the caller.
func (l *Ledger) CreateTransaction(ctx context.Context, actor Actor, in TransactionInput) (Transaction, error) {
	if !actor.Authenticated() {
		return Transaction{}, ErrUnauthenticated
	}

	tx := Transaction{
		UserID:      actor.UserID,
		Description: strings.TrimSpace(in.Description),
		Amount:      NormalizeMoney(in.Amount),
		Date:        in.Date,
		Kind:        in.Kind,
		Category:    strings.TrimSpace(in.Category),
	}
	if err := validateTransaction(tx); err != nil {
		return Transaction{}, err
	}

	created, err := l.Store.InsertTransaction(ctx, tx)
	return created, Storage("create transaction", err)
}

// UpdateTransaction applies patch to one of the caller's transactions.
func (l *Ledger) UpdateTransaction(ctx context.Context, actor Actor, id TransactionID, patch TransactionPatch) (Transaction, error) {
	if !actor.Authenticated() {
		return Transaction{}, ErrUnauthenticated
	}

	var updated Transaction
	err := l.Store.WithTx(ctx, func(s Store) error {
		current, err := ownedTransaction(ctx, s, actor, id)
		if err != nil {
			return err
		}
		if current.Invoiced() && patch.ChangesAmount(current) {
			return fmt.Errorf("%w: transaction %d is invoiced; its amount is fixed", ErrConflict, id)
		}

		next := patch.Apply(current)
		if err := validateTransaction(next); err != nil {
			return err
		}
		if err := s.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Transaction{}, Storage("update transaction", err)
	}
	return updated, nil
}

// DeleteTransaction removes one of the caller's uninvoiced transactions.
func (l *Ledger) DeleteTransaction(ctx context.Context, actor Actor, id TransactionID) (bool, error) {
	if !actor.Authenticated() {
		return false, ErrUnauthenticated
	}

	var deleted bool
	err := l.Store.WithTx(ctx, func(s Store) error {
		current, err := ownedTransaction(ctx, s, actor, id)
		if err != nil {
			return err
		}
		if current.Invoiced() {
			return fmt.Errorf("%w: transaction %d is invoiced", ErrConflict, id)
		}
		deleted, err = s.DeleteTransaction(ctx, actor.UserID, id)
		return err
	})
	if err != nil {
		return false, Storage("delete transaction", err)
	}
	return deleted, nil
}

// =============================================================================
// INVOICES
// =============================================================================

// UpdateInvoiceStatus moves one of the caller's invoices to status.
// Cancelling releases the invoice's transactions.
func (l *Ledger) UpdateInvoiceStatus(ctx context.Context, actor Actor, id InvoiceID, status InvoiceStatus) (Invoice, error) {
	if !actor.Authenticated() {
		return Invoice{}, ErrUnauthenticated
	}
	if !status.Valid() {
		return Invoice{}, invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	var updated Invoice
	err := l.Store.WithTx(ctx, func(s Store) error {
		inv, err := ownedInvoice(ctx, s, actor, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled && status != StatusCancelled {
			return fmt.Errorf("%w: invoice %s is cancelled", ErrConflict, inv.Number)
		}
		if err := s.UpdateInvoiceStatus(ctx, id, status); err != nil {
			return err
		}
		if status == StatusCancelled {
			if _, err := s.UnlinkInvoice(ctx, id); err != nil {
				return err
			}
		}
		inv.Status = status
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, Storage("update invoice status", err)
	}
	return updated, nil
}

// DeleteInvoice unlinks an invoice's transactions and removes the invoice.
func (l *Ledger) DeleteInvoice(ctx context.Context, actor Actor, id InvoiceID) (bool, error) {
	if !actor.Authenticated() {
		return false, ErrUnauthenticated
	}

	var deleted bool
	err := l.Store.WithTx(ctx, func(s Store) error {
		if _, err := ownedInvoice(ctx, s, actor, id); err != nil {
			return err
		}
		if _, err := s.UnlinkInvoice(ctx, id); err != nil {
			return err
		}
		var err error
		deleted, err = s.DeleteInvoice(ctx, id)
		return err
	})
	if err != nil {
		return false, Storage("delete invoice", err)
	}
	return deleted, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func ownedTransaction(ctx context.Context, s Store, actor Actor, id TransactionID) (Transaction, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.UserID != actor.UserID {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, nil
}

func ownedInvoice(ctx context.Context, s Store, actor Actor, id InvoiceID) (Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.UserID != actor.UserID {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	return inv, nil
}

func validateTransaction(tx Transaction) error {
	switch {
	case tx.Description == "":
		return invalid("description", "required")
	case !tx.Kind.Valid():
		return invalid("type", fmt.Sprintf("must be %q or %q", KindIncome, KindExpense))
	case tx.Category == "":
		return invalid("category", "required")
	case tx.Date.IsZero():
		return invalid("date", "required")
	}
	return nil
}
