/*
store.go - Persistence interfaces for users, transactions and invoices

PURPOSE:
  Defines the boundary between domain logic and the database. Every method
  is a single statement; multi-statement work goes through TxStore.WithTx.

KEY INTERFACES:
  UserStore:        Sign-up and owner lookups
  TransactionStore: Ledger rows, including the invoice link
  InvoiceStore:     Invoice rows
  Store:            All of the above
  TxStore:          Store plus an atomic unit of work

NOT FOUND:
  Single-row getters return ErrNotFound (wrapped) when the row is missing.
  Ownership filtering is the caller's job; stores look rows up by ID.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - ledger/store/memory.go: In-memory (tests, dev)

SEE ALSO:
  - aggregator.go: The only WithTx caller on the hot path
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

type UserStore interface {
	// CreateUser inserts u and returns it with ID and CreatedAt set.
	// Returns ErrAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, u User) (User, error)

	GetUser(ctx context.Context, id UserID) (User, error)

	// GetUserByEmail looks up by normalized email.
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

type TransactionStore interface {
	// InsertTransaction inserts tx and returns it with ID and CreatedAt set.
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// UpdateTransaction rewrites the editable fields of tx (not the owner,
	// not the invoice link).
	UpdateTransaction(ctx context.Context, tx Transaction) error

	// DeleteTransaction removes the row if it belongs to userID.
	DeleteTransaction(ctx context.Context, userID UserID, id TransactionID) (bool, error)

	// ListTransactionsByUser returns userID's rows ordered by date, then ID.
	ListTransactionsByUser(ctx context.Context, userID UserID) ([]Transaction, error)

	// ListTransactionsByInvoice returns the rows linked to invoiceID ordered
	// by date, then ID.
	ListTransactionsByInvoice(ctx context.Context, invoiceID InvoiceID) ([]Transaction, error)

	// TransactionsByIDs returns the rows that exist among ids, any owner,
	// ordered by ID.
	TransactionsByIDs(ctx context.Context, ids []TransactionID) ([]Transaction, error)

	// LinkTransactions points the selected rows at an invoice and returns
	// the number of rows changed.
	LinkTransactions(ctx context.Context, link Link) (int64, error)

	// UnlinkInvoice clears the invoice reference on every row pointing at
	// invoiceID.
	UnlinkInvoice(ctx context.Context, invoiceID InvoiceID) (int64, error)
}

// Link selects the rows LinkTransactions changes: owned by UserID, ID in IDs,
// and, when OnlyUnlinked is set, not already linked to any invoice.
type Link struct {
	InvoiceID    InvoiceID
	UserID       UserID
	IDs          []TransactionID
	OnlyUnlinked bool
}

type InvoiceStore interface {
	// InsertInvoice inserts inv and returns it with ID and CreatedAt set.
	// Returns ErrAlreadyExists if the number is taken.
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)

	GetInvoice(ctx context.Context, id InvoiceID) (Invoice, error)

	// ListInvoicesByUser returns userID's invoices ordered by creation.
	ListInvoicesByUser(ctx context.Context, userID UserID) ([]Invoice, error)

	UpdateInvoiceStatus(ctx context.Context, id InvoiceID, status InvoiceStatus) error

	DeleteInvoice(ctx context.Context, id InvoiceID) (bool, error)
}

type Store interface {
	UserStore
	TransactionStore
	InvoiceStore
}

// =============================================================================
// TRANSACTIONAL STORE - For the invoice unit of work
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction that holds the write lock
	// from the start. If fn returns error, the transaction is rolled back.
	// If fn returns nil, it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
