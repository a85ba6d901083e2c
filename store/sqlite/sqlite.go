/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists users, transactions and invoices. The schema lives in versioned
  SQL files under migrations/ and is applied with golang-migrate; New runs
  pending migrations, Open does not.

KEY TABLES:
  users:        Accounts (email is UNIQUE)
  transactions: Ledger rows; invoice_id links a row to at most one invoice
  invoices:     Billing documents (number is UNIQUE)

INDEXES:
  - idx_transactions_user_date: Per-user listing (hot path)
  - idx_transactions_invoice:   Invoice -> transactions lookup

ENCODING:
  Amounts and totals are decimal text with two places. Calendar days are
  TEXT in YYYY-MM-DD so they sort lexically. Timestamps are RFC 3339 UTC.

CONCURRENCY:
  One connection, a sync.RWMutex, and _txlock=immediate so WithTx takes the
  database write lock at BEGIN rather than at the first write. A unit of
  work therefore sees a stable view for its checks and its writes.

USAGE:
  store, err := sqlite.New("./data/fintrack.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  agg := ledger.NewAggregator(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - migrate.go: Schema migrations
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fintrack/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	store, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.MigrateUp(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open opens the database at dbPath without touching the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a second, empty database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(rows{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id ledger.UserID) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.GetUserByEmail(ctx, email)
}

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.InsertTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.GetTransaction(ctx, id)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.UpdateTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.DeleteTransaction(ctx, userID, id)
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.ListTransactionsByUser(ctx, userID)
}

func (s *Store) ListTransactionsByInvoice(ctx context.Context, invoiceID ledger.InvoiceID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.ListTransactionsByInvoice(ctx, invoiceID)
}

func (s *Store) TransactionsByIDs(ctx context.Context, ids []ledger.TransactionID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.TransactionsByIDs(ctx, ids)
}

func (s *Store) LinkTransactions(ctx context.Context, link ledger.Link) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.LinkTransactions(ctx, link)
}

func (s *Store) UnlinkInvoice(ctx context.Context, invoiceID ledger.InvoiceID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.UnlinkInvoice(ctx, invoiceID)
}

func (s *Store) InsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.InsertInvoice(ctx, inv)
}

func (s *Store) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.GetInvoice(ctx, id)
}

func (s *Store) ListInvoicesByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rows{q: s.db}.ListInvoicesByUser(ctx, userID)
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.UpdateInvoiceStatus(ctx, id, status)
}

func (s *Store) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rows{q: s.db}.DeleteInvoice(ctx, id)
}

// =============================================================================
// ROWS - SQL for every ledger.Store method, run on *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rows struct {
	q querier
}

const userColumns = `id, email, name, password_hash, created_at`

func (r rows) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	u.Email = ledger.NormalizeEmail(u.Email)
	u.CreatedAt = now()

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.Email, u.Name, u.PasswordHash, formatTimestamp(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.User{}, fmt.Errorf("email %s: %w", u.Email, ledger.ErrAlreadyExists)
		}
		return ledger.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	u.ID = ledger.UserID(id)
	return u, nil
}

func (r rows) GetUser(ctx context.Context, id ledger.UserID) (ledger.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, fmt.Errorf("user %d: %w", id, ledger.ErrNotFound)
	}
	return u, err
}

func (r rows) GetUserByEmail(ctx context.Context, email string) (ledger.User, error) {
	email = ledger.NormalizeEmail(email)
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, fmt.Errorf("user %s: %w", email, ledger.ErrNotFound)
	}
	return u, err
}

func scanUser(row *sql.Row) (ledger.User, error) {
	var (
		u         ledger.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
		return u, fmt.Errorf("failed to scan user: %w", err)
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

const transactionColumns = `id, user_id, invoice_id, description, amount, date, type, category, created_at`

func (r rows) InsertTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	tx.CreatedAt = now()

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions
		(user_id, invoice_id, description, amount, date, type, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.UserID,
		nullInvoiceID(tx.InvoiceID),
		tx.Description,
		formatMoney(tx.Amount),
		ledger.FormatDate(tx.Date),
		string(tx.Kind),
		tx.Category,
		formatTimestamp(tx.CreatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.Transaction{}, fmt.Errorf("user %d: %w", tx.UserID, ledger.ErrNotFound)
		}
		return ledger.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = ledger.TransactionID(id)
	return tx, nil
}

func (r rows) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", id, ledger.ErrNotFound)
	}
	return txs[0], nil
}

func (r rows) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, amount = ?, date = ?, type = ?, category = ?
		WHERE id = ?
	`,
		tx.Description,
		formatMoney(tx.Amount),
		ledger.FormatDate(tx.Date),
		string(tx.Kind),
		tx.Category,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", tx.ID, ledger.ErrNotFound)
	}
	return nil
}

func (r rows) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return n > 0, nil
}

func (r rows) ListTransactionsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ?
		ORDER BY date ASC, id ASC
	`, userID)
}

func (r rows) ListTransactionsByInvoice(ctx context.Context, invoiceID ledger.InvoiceID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE invoice_id = ?
		ORDER BY date ASC, id ASC
	`, invoiceID)
}

func (r rows) TransactionsByIDs(ctx context.Context, ids []ledger.TransactionID) ([]ledger.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id IN (`+in+`)
		ORDER BY id ASC
	`, args...)
}

// LinkTransactions repeats the owner (and optionally the unlinked) check in
// the WHERE clause, so the returned count only covers rows that still
// qualify at write time.
func (r rows) LinkTransactions(ctx context.Context, link ledger.Link) (int64, error) {
	if len(link.IDs) == 0 {
		return 0, nil
	}
	in, idArgs := inClause(link.IDs)

	query := `UPDATE transactions SET invoice_id = ? WHERE user_id = ? AND id IN (` + in + `)`
	if link.OnlyUnlinked {
		query += ` AND invoice_id IS NULL`
	}
	args := append([]any{link.InvoiceID, link.UserID}, idArgs...)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("invoice %d: %w", link.InvoiceID, ledger.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to link transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to link transactions: %w", err)
	}
	return n, nil
}

func (r rows) UnlinkInvoice(ctx context.Context, invoiceID ledger.InvoiceID) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE transactions SET invoice_id = NULL WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to unlink transactions: %w", err)
	}
	return n, nil
}

func (r rows) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rs, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rs.Close()

	var transactions []ledger.Transaction
	for rs.Next() {
		tx, err := scanTransaction(rs)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rs.Err()
}

func scanTransaction(rs *sql.Rows) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		invoiceID sql.NullInt64
		amount    string
		date      string
		kind      string
		createdAt string
	)

	err := rs.Scan(
		&tx.ID, &tx.UserID, &invoiceID, &tx.Description,
		&amount, &date, &kind, &tx.Category, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if invoiceID.Valid {
		id := ledger.InvoiceID(invoiceID.Int64)
		tx.InvoiceID = &id
	}
	if tx.Amount, err = parseMoney(amount); err != nil {
		return tx, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.Date, err = ledger.ParseDate(date); err != nil {
		return tx, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Kind = ledger.Kind(kind)
	tx.CreatedAt = parseTimestamp(createdAt)

	return tx, nil
}

// -----------------------------------------------------------------------------
// Invoices
// -----------------------------------------------------------------------------

const invoiceColumns = `id, user_id, number, client_name, client_email, due_date, total, status, created_at`

func (r rows) InsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	inv.CreatedAt = now()
	inv.Total = ledger.NormalizeMoney(inv.Total)

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO invoices
		(user_id, number, client_name, client_email, due_date, total, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.UserID,
		inv.Number,
		inv.ClientName,
		inv.ClientEmail,
		ledger.FormatDate(inv.DueDate),
		formatMoney(inv.Total),
		string(inv.Status),
		formatTimestamp(inv.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Invoice{}, fmt.Errorf("invoice number %s: %w", inv.Number, ledger.ErrAlreadyExists)
		}
		return ledger.Invoice{}, fmt.Errorf("failed to insert invoice: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Invoice{}, fmt.Errorf("failed to read invoice id: %w", err)
	}
	inv.ID = ledger.InvoiceID(id)
	return inv, nil
}

func (r rows) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	invs, err := r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if len(invs) == 0 {
		return ledger.Invoice{}, fmt.Errorf("invoice %d: %w", id, ledger.ErrNotFound)
	}
	return invs[0], nil
}

func (r rows) ListInvoicesByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Invoice, error) {
	return r.queryInvoices(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
}

func (r rows) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE invoices SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invoice %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r rows) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete invoice: %w", err)
	}
	return n > 0, nil
}

func (r rows) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.Invoice, error) {
	rs, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rs.Close()

	var invoices []ledger.Invoice
	for rs.Next() {
		var (
			inv       ledger.Invoice
			dueDate   string
			total     string
			status    string
			createdAt string
		)
		err := rs.Scan(
			&inv.ID, &inv.UserID, &inv.Number, &inv.ClientName, &inv.ClientEmail,
			&dueDate, &total, &status, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		if inv.DueDate, err = ledger.ParseDate(dueDate); err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		if inv.Total, err = parseMoney(total); err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		inv.Status = ledger.InvoiceStatus(status)
		inv.CreatedAt = parseTimestamp(createdAt)
		invoices = append(invoices, inv)
	}

	return invoices, rs.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() time.Time { return time.Now().UTC() }

func formatTimestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatMoney(d decimal.Decimal) string { return d.StringFixed(ledger.MoneyPlaces) }

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return d, nil
}

func nullInvoiceID(id *ledger.InvoiceID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func inClause(ids []ledger.TransactionID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
