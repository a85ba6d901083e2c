/*
query.go - Read-side projections

PURPOSE:
  Every read the API serves: the caller's profile, transactions and
  invoices, an invoice's linked transactions, and owner lookups. Each method
  rejects anonymous callers with ErrUnauthenticated. Rows owned by another
  user read as ErrNotFound rather than leaking their existence.

OWNER LOOKUPS:
  User rows change rarely and are read for every nested `user` field, so
  they go through a UserCache when one is configured. Cache misses and
  cache errors fall through to the store.

SEE ALSO:
  - cache/: LRU and Redis UserCache implementations
  - api/types.go: GraphQL fields built on these methods
*/
package ledger

import (
	"context"
	"fmt"
)

// UserCache holds user rows by ID. Users are never updated, so entries only
// leave a cache by expiry or eviction.
type UserCache interface {
	Get(ctx context.Context, id UserID) (User, bool)
	Set(ctx context.Context, u User)
}

type Queries struct {
	Store Store
	Users UserCache // optional
}

func NewQueries(store Store, users UserCache) *Queries {
	return &Queries{Store: store, Users: users}
}

// Me returns the caller's user record.
func (q *Queries) Me(ctx context.Context, actor Actor) (User, error) {
	if !actor.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	return q.user(ctx, actor.UserID)
}

// ListTransactions returns the caller's transactions ordered by date, then ID.
func (q *Queries) ListTransactions(ctx context.Context, actor Actor) ([]Transaction, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	txs, err := q.Store.ListTransactionsByUser(ctx, actor.UserID)
	return txs, Storage("list transactions", err)
}

// ListInvoices returns the caller's invoices ordered by creation.
func (q *Queries) ListInvoices(ctx context.Context, actor Actor) ([]Invoice, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	invs, err := q.Store.ListInvoicesByUser(ctx, actor.UserID)
	return invs, Storage("list invoices", err)
}

// Transaction returns one of the caller's transactions.
func (q *Queries) Transaction(ctx context.Context, actor Actor, id TransactionID) (Transaction, error) {
	if !actor.Authenticated() {
		return Transaction{}, ErrUnauthenticated
	}
	tx, err := q.Store.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, Storage("get transaction", err)
	}
	if tx.UserID != actor.UserID {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, nil
}

// Invoice returns one of the caller's invoices.
func (q *Queries) Invoice(ctx context.Context, actor Actor, id InvoiceID) (Invoice, error) {
	if !actor.Authenticated() {
		return Invoice{}, ErrUnauthenticated
	}
	inv, err := q.Store.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, Storage("get invoice", err)
	}
	if inv.UserID != actor.UserID {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	return inv, nil
}

// InvoiceTransactions follows the stored link back from an invoice.
func (q *Queries) InvoiceTransactions(ctx context.Context, actor Actor, inv Invoice) ([]Transaction, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if inv.UserID != actor.UserID {
		return nil, fmt.Errorf("invoice %d: %w", inv.ID, ErrNotFound)
	}
	txs, err := q.Store.ListTransactionsByInvoice(ctx, inv.ID)
	return txs, Storage("list invoice transactions", err)
}

// TransactionInvoice returns the invoice tx is linked to, or nil.
func (q *Queries) TransactionInvoice(ctx context.Context, actor Actor, tx Transaction) (*Invoice, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if tx.InvoiceID == nil {
		return nil, nil
	}
	inv, err := q.Invoice(ctx, actor, *tx.InvoiceID)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// TransactionOwner resolves the user that owns tx.
func (q *Queries) TransactionOwner(ctx context.Context, actor Actor, tx Transaction) (User, error) {
	if !actor.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	return q.user(ctx, tx.UserID)
}

// InvoiceOwner resolves the user that owns inv.
func (q *Queries) InvoiceOwner(ctx context.Context, actor Actor, inv Invoice) (User, error) {
	if !actor.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	return q.user(ctx, inv.UserID)
}

func (q *Queries) user(ctx context.Context, id UserID) (User, error) {
	if q.Users != nil {
		if u, ok := q.Users.Get(ctx, id); ok {
			return u, nil
		}
	}
	u, err := q.Store.GetUser(ctx, id)
	if err != nil {
		return User{}, Storage("get user", err)
	}
	if q.Users != nil {
		q.Users.Set(ctx, u)
	}
	return u, nil
}
