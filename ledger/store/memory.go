// Package store provides in-process ledger.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/fintrack/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all rows in maps. WithTx runs against a copy of the data and
// swaps it in on success, so a failed unit of work leaves nothing behind.
type Memory struct {
	mu   sync.RWMutex
	data *state
}

func NewMemory() *Memory {
	return &Memory{data: newState()}
}

// WithTx executes fn against a private copy and commits it if fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := m.data.clone()
	if err := fn(draft); err != nil {
		return err
	}
	m.data = draft
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id ledger.UserID) (ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetUser(ctx, id)
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetUserByEmail(ctx, email)
}

func (m *Memory) InsertTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.InsertTransaction(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetTransaction(ctx, id)
}

func (m *Memory) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateTransaction(ctx, tx)
}

func (m *Memory) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteTransaction(ctx, userID, id)
}

func (m *Memory) ListTransactionsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListTransactionsByUser(ctx, userID)
}

func (m *Memory) ListTransactionsByInvoice(ctx context.Context, invoiceID ledger.InvoiceID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListTransactionsByInvoice(ctx, invoiceID)
}

func (m *Memory) TransactionsByIDs(ctx context.Context, ids []ledger.TransactionID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.TransactionsByIDs(ctx, ids)
}

func (m *Memory) LinkTransactions(ctx context.Context, link ledger.Link) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.LinkTransactions(ctx, link)
}

func (m *Memory) UnlinkInvoice(ctx context.Context, invoiceID ledger.InvoiceID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UnlinkInvoice(ctx, invoiceID)
}

func (m *Memory) InsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.InsertInvoice(ctx, inv)
}

func (m *Memory) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetInvoice(ctx, id)
}

func (m *Memory) ListInvoicesByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListInvoicesByUser(ctx, userID)
}

func (m *Memory) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateInvoiceStatus(ctx, id, status)
}

func (m *Memory) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteInvoice(ctx, id)
}

// =============================================================================
// STATE - Unlocked rows; also the ledger.Store handed to WithTx callbacks
// =============================================================================

type state struct {
	users        map[ledger.UserID]ledger.User
	transactions map[ledger.TransactionID]ledger.Transaction
	invoices     map[ledger.InvoiceID]ledger.Invoice

	lastUser        ledger.UserID
	lastTransaction ledger.TransactionID
	lastInvoice     ledger.InvoiceID
}

func newState() *state {
	return &state{
		users:        make(map[ledger.UserID]ledger.User),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		invoices:     make(map[ledger.InvoiceID]ledger.Invoice),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:           make(map[ledger.UserID]ledger.User, len(s.users)),
		transactions:    make(map[ledger.TransactionID]ledger.Transaction, len(s.transactions)),
		invoices:        make(map[ledger.InvoiceID]ledger.Invoice, len(s.invoices)),
		lastUser:        s.lastUser,
		lastTransaction: s.lastTransaction,
		lastInvoice:     s.lastInvoice,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	return c
}

func (s *state) CreateUser(_ context.Context, u ledger.User) (ledger.User, error) {
	u.Email = ledger.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ledger.User{}, fmt.Errorf("email %s: %w", u.Email, ledger.ErrAlreadyExists)
		}
	}
	s.lastUser++
	u.ID = s.lastUser
	u.CreatedAt = now()
	s.users[u.ID] = u
	return u, nil
}

func (s *state) GetUser(_ context.Context, id ledger.UserID) (ledger.User, error) {
	u, ok := s.users[id]
	if !ok {
		return ledger.User{}, fmt.Errorf("user %d: %w", id, ledger.ErrNotFound)
	}
	return u, nil
}

func (s *state) GetUserByEmail(_ context.Context, email string) (ledger.User, error) {
	email = ledger.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return ledger.User{}, fmt.Errorf("user %s: %w", email, ledger.ErrNotFound)
}

func (s *state) InsertTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if _, ok := s.users[tx.UserID]; !ok {
		return ledger.Transaction{}, fmt.Errorf("user %d: %w", tx.UserID, ledger.ErrNotFound)
	}
	s.lastTransaction++
	tx.ID = s.lastTransaction
	tx.CreatedAt = now()
	s.transactions[tx.ID] = copyTransaction(tx)
	return copyTransaction(tx), nil
}

func (s *state) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", id, ledger.ErrNotFound)
	}
	return copyTransaction(tx), nil
}

func (s *state) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	current, ok := s.transactions[tx.ID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", tx.ID, ledger.ErrNotFound)
	}
	current.Description = tx.Description
	current.Amount = tx.Amount
	current.Date = tx.Date
	current.Kind = tx.Kind
	current.Category = tx.Category
	s.transactions[tx.ID] = current
	return nil
}

func (s *state) DeleteTransaction(_ context.Context, userID ledger.UserID, id ledger.TransactionID) (bool, error) {
	tx, ok := s.transactions[id]
	if !ok || tx.UserID != userID {
		return false, nil
	}
	delete(s.transactions, id)
	return true, nil
}

func (s *state) ListTransactionsByUser(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return s.filterTransactions(func(tx ledger.Transaction) bool { return tx.UserID == userID }), nil
}

func (s *state) ListTransactionsByInvoice(_ context.Context, invoiceID ledger.InvoiceID) ([]ledger.Transaction, error) {
	return s.filterTransactions(func(tx ledger.Transaction) bool {
		return tx.InvoiceID != nil && *tx.InvoiceID == invoiceID
	}), nil
}

func (s *state) TransactionsByIDs(_ context.Context, ids []ledger.TransactionID) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0, len(ids))
	seen := make(map[ledger.TransactionID]bool, len(ids))
	for _, id := range ids {
		if tx, ok := s.transactions[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) LinkTransactions(_ context.Context, link ledger.Link) (int64, error) {
	if _, ok := s.invoices[link.InvoiceID]; !ok {
		return 0, fmt.Errorf("invoice %d: %w", link.InvoiceID, ledger.ErrNotFound)
	}
	var n int64
	for _, id := range link.IDs {
		tx, ok := s.transactions[id]
		if !ok || tx.UserID != link.UserID {
			continue
		}
		if link.OnlyUnlinked && tx.InvoiceID != nil {
			continue
		}
		invoiceID := link.InvoiceID
		tx.InvoiceID = &invoiceID
		s.transactions[id] = tx
		n++
	}
	return n, nil
}

func (s *state) UnlinkInvoice(_ context.Context, invoiceID ledger.InvoiceID) (int64, error) {
	var n int64
	for id, tx := range s.transactions {
		if tx.InvoiceID != nil && *tx.InvoiceID == invoiceID {
			tx.InvoiceID = nil
			s.transactions[id] = tx
			n++
		}
	}
	return n, nil
}

func (s *state) InsertInvoice(_ context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	for _, existing := range s.invoices {
		if existing.Number == inv.Number {
			return ledger.Invoice{}, fmt.Errorf("invoice number %s: %w", inv.Number, ledger.ErrAlreadyExists)
		}
	}
	s.lastInvoice++
	inv.ID = s.lastInvoice
	inv.CreatedAt = now()
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *state) GetInvoice(_ context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.Invoice{}, fmt.Errorf("invoice %d: %w", id, ledger.ErrNotFound)
	}
	return inv, nil
}

func (s *state) ListInvoicesByUser(_ context.Context, userID ledger.UserID) ([]ledger.Invoice, error) {
	var out []ledger.Invoice
	for _, inv := range s.invoices {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) UpdateInvoiceStatus(_ context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus) error {
	inv, ok := s.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d: %w", id, ledger.ErrNotFound)
	}
	inv.Status = status
	s.invoices[id] = inv
	return nil
}

// DeleteInvoice mirrors the SQL foreign key's ON DELETE SET NULL.
func (s *state) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) (bool, error) {
	if _, ok := s.invoices[id]; !ok {
		return false, nil
	}
	if _, err := s.UnlinkInvoice(ctx, id); err != nil {
		return false, err
	}
	delete(s.invoices, id)
	return true, nil
}

func (s *state) filterTransactions(keep func(ledger.Transaction) bool) []ledger.Transaction {
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyTransaction(tx ledger.Transaction) ledger.Transaction {
	if tx.InvoiceID != nil {
		id := *tx.InvoiceID
		tx.InvoiceID = &id
	}
	return tx
}

func now() time.Time { return time.Now().UTC() }
