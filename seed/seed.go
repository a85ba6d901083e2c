/*
seed.go - Demo data loaders for development and demonstrations

PURPOSE:
  Populates a database with realistic accounts, transactions and invoices
  through the same services the GraphQL API uses, so seeded data obeys
  every ledger rule (ownership, linking, totals).

AVAILABLE SCENARIOS:
  freelancer:  Consulting income billed to Acme on one invoice
  household:   Monthly expenses, nothing invoiced
  collections: One paid, one pending and one cancelled invoice

HOW SCENARIOS WORK:
  1. Sign up the scenario's account (fails if the email is taken)
  2. Record transactions as that account
  3. Optionally aggregate some of them into invoices
  4. Optionally move invoices through their statuses

USAGE:
  fintrack seed freelancer
  fintrack seed --list

ADDING NEW SCENARIOS:
  1. Add an entry to Scenarios with ID, name, description
  2. Write a loader: func(ctx, *Loader, *Result) error

NOTE:
  Every scenario signs up with DemoPassword. Only use against development
  databases.
*/
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/ledger"
)

const DemoPassword = "demo-password-123"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type Scenario struct {
	ID          string
	Name        string
	Description string
	load        func(ctx context.Context, l *Loader, res *Result) error
}

// Scenarios lists the loadable scenarios in display order.
var Scenarios = []Scenario{
	{
		ID:          "freelancer",
		Name:        "Freelancer",
		Description: "Consulting income for Acme aggregated into one invoice",
		load:        loadFreelancer,
	},
	{
		ID:          "household",
		Name:        "Household",
		Description: "A month of household expenses, nothing invoiced",
		load:        loadHousehold,
	},
	{
		ID:          "collections",
		Name:        "Collections",
		Description: "Paid, pending and cancelled invoices for two clients",
		load:        loadCollections,
	},
}

// Find returns the scenario with the given ID.
func Find(id string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Result summarizes what a scenario created.
type Result struct {
	Scenario     string
	Email        string
	Token        string
	Transactions []ledger.Transaction
	Invoices     []ledger.Invoice
}

// =============================================================================
// LOADER
// =============================================================================

type Loader struct {
	Auth       *auth.Service
	Ledger     *ledger.Ledger
	Aggregator *ledger.Aggregator
	Logger     *slog.Logger
}

// Load runs the named scenario.
func (l *Loader) Load(ctx context.Context, id string) (Result, error) {
	s, ok := Find(id)
	if !ok {
		return Result{}, fmt.Errorf("unknown scenario %q", id)
	}

	res := Result{Scenario: s.ID}
	if err := s.load(ctx, l, &res); err != nil {
		return res, fmt.Errorf("scenario %s: %w", s.ID, err)
	}

	l.logger().InfoContext(ctx, "Scenario loaded",
		"scenario", s.ID,
		"email", res.Email,
		"transactions", len(res.Transactions),
		"invoices", len(res.Invoices))
	return res, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) signUp(ctx context.Context, res *Result, email, name string) (ledger.Actor, error) {
	session, err := l.Auth.SignUp(ctx, email, DemoPassword, name)
	if err != nil {
		return ledger.Anonymous, err
	}
	res.Email = session.User.Email
	res.Token = session.Token
	return ledger.ActorFor(session.User.ID), nil
}

type entry struct {
	description string
	amount      string
	date        string
	kind        ledger.Kind
	category    string
}

func (l *Loader) record(ctx context.Context, actor ledger.Actor, res *Result, entries []entry) ([]ledger.TransactionID, error) {
	ids := make([]ledger.TransactionID, 0, len(entries))
	for _, e := range entries {
		date, err := ledger.ParseDate(e.date)
		if err != nil {
			return nil, err
		}
		tx, err := l.Ledger.CreateTransaction(ctx, actor, ledger.TransactionInput{
			Description: e.description,
			Amount:      decimal.RequireFromString(e.amount),
			Date:        date,
			Kind:        e.kind,
			Category:    e.category,
		})
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", e.description, err)
		}
		res.Transactions = append(res.Transactions, tx)
		ids = append(ids, tx.ID)
	}
	return ids, nil
}

func (l *Loader) invoice(ctx context.Context, actor ledger.Actor, res *Result, ids []ledger.TransactionID, client, email string, due time.Time) (ledger.Invoice, error) {
	inv, err := l.Aggregator.CreateInvoice(ctx, actor, ledger.InvoiceRequest{
		TransactionIDs: ids,
		ClientName:     client,
		ClientEmail:    email,
		DueDate:        due,
	})
	if err != nil {
		return ledger.Invoice{}, fmt.Errorf("invoice %s: %w", client, err)
	}
	res.Invoices = append(res.Invoices, inv)
	return inv, nil
}

func (l *Loader) setStatus(ctx context.Context, actor ledger.Actor, res *Result, inv ledger.Invoice, status ledger.InvoiceStatus) error {
	updated, err := l.Ledger.UpdateInvoiceStatus(ctx, actor, inv.ID, status)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", inv.Number, status, err)
	}
	for i := range res.Invoices {
		if res.Invoices[i].ID == updated.ID {
			res.Invoices[i] = updated
		}
	}
	return nil
}

func day(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadFreelancer creates three consulting entries and bills them to Acme
// (100.00 + 50.00 = 150.00), leaving one expense unbilled.
func loadFreelancer(ctx context.Context, l *Loader, res *Result) error {
	actor, err := l.signUp(ctx, res, "freelancer@example.com", "Fran Lancer")
	if err != nil {
		return err
	}

	ids, err := l.record(ctx, actor, res, []entry{
		{"Acme discovery workshop", "100.00", "2025-03-03", ledger.KindIncome, "consulting"},
		{"Acme follow-up call", "50.00", "2025-03-10", ledger.KindIncome, "consulting"},
		{"Co-working day pass", "25.00", "2025-03-10", ledger.KindExpense, "office"},
	})
	if err != nil {
		return err
	}

	_, err = l.invoice(ctx, actor, res, ids[:2], "Acme", "billing@acme.example", day("2025-04-01"))
	return err
}

func loadHousehold(ctx context.Context, l *Loader, res *Result) error {
	actor, err := l.signUp(ctx, res, "household@example.com", "Hal Holder")
	if err != nil {
		return err
	}

	_, err = l.record(ctx, actor, res, []entry{
		{"Salary", "3200.00", "2025-02-01", ledger.KindIncome, "salary"},
		{"Rent", "1350.00", "2025-02-01", ledger.KindExpense, "housing"},
		{"Groceries", "82.45", "2025-02-03", ledger.KindExpense, "food"},
		{"Electricity", "61.10", "2025-02-07", ledger.KindExpense, "utilities"},
		{"Groceries", "97.30", "2025-02-10", ledger.KindExpense, "food"},
		{"Train pass", "45.00", "2025-02-12", ledger.KindExpense, "transport"},
		{"Groceries", "74.05", "2025-02-17", ledger.KindExpense, "food"},
		{"Internet", "39.99", "2025-02-20", ledger.KindExpense, "utilities"},
	})
	return err
}

// loadCollections leaves one invoice PAID, one PENDING, and one CANCELLED.
// Cancelling releases its transactions, which are then re-billed on the
// pending invoice.
func loadCollections(ctx context.Context, l *Loader, res *Result) error {
	actor, err := l.signUp(ctx, res, "studio@example.com", "Studio Owner")
	if err != nil {
		return err
	}

	ids, err := l.record(ctx, actor, res, []entry{
		{"Globex logo design", "800.00", "2025-01-06", ledger.KindIncome, "design"},
		{"Globex brand guide", "1200.00", "2025-01-20", ledger.KindIncome, "design"},
		{"Initech landing page", "650.00", "2025-02-03", ledger.KindIncome, "web"},
		{"Initech copy edits", "120.00", "2025-02-05", ledger.KindIncome, "web"},
	})
	if err != nil {
		return err
	}

	paid, err := l.invoice(ctx, actor, res, ids[:2], "Globex", "ap@globex.example", day("2025-02-15"))
	if err != nil {
		return err
	}
	if err := l.setStatus(ctx, actor, res, paid, ledger.StatusPaid); err != nil {
		return err
	}

	wrong, err := l.invoice(ctx, actor, res, ids[2:3], "Initech", "accounts@initech.example", day("2025-03-01"))
	if err != nil {
		return err
	}
	if err := l.setStatus(ctx, actor, res, wrong, ledger.StatusCancelled); err != nil {
		return err
	}

	_, err = l.invoice(ctx, actor, res, ids[2:], "Initech", "accounts@initech.example", day("2025-03-15"))
	return err
}
