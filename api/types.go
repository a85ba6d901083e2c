package api

import (
	"context"
	"fmt"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/ledger"
)

// Object resolvers carry the actor they were built for. Nested fields act
// as that actor, so the user returned by signUp/signIn can follow its own
// edges within the same request.

func (r *Resolver) user(actor ledger.Actor, u ledger.User) *userResolver {
	return &userResolver{root: r, actor: actor, u: u}
}

func (r *Resolver) transaction(actor ledger.Actor, tx ledger.Transaction) *transactionResolver {
	return &transactionResolver{root: r, actor: actor, tx: tx}
}

func (r *Resolver) transactions(actor ledger.Actor, txs []ledger.Transaction) []*transactionResolver {
	out := make([]*transactionResolver, len(txs))
	for i, tx := range txs {
		out[i] = r.transaction(actor, tx)
	}
	return out
}

func (r *Resolver) invoice(actor ledger.Actor, inv ledger.Invoice) *invoiceResolver {
	return &invoiceResolver{root: r, actor: actor, inv: inv}
}

func (r *Resolver) invoices(actor ledger.Actor, invs []ledger.Invoice) []*invoiceResolver {
	out := make([]*invoiceResolver, len(invs))
	for i, inv := range invs {
		out[i] = r.invoice(actor, inv)
	}
	return out
}

func formatTimestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// =============================================================================
// USER
// =============================================================================

type userResolver struct {
	root  *Resolver
	actor ledger.Actor
	u     ledger.User
}

func (u *userResolver) ID() graphql.ID    { return formatID(int64(u.u.ID)) }
func (u *userResolver) Email() string     { return u.u.Email }
func (u *userResolver) Name() string      { return u.u.Name }
func (u *userResolver) CreatedAt() string { return formatTimestamp(u.u.CreatedAt) }

// Transactions lists the user's transactions. Only the user themself may
// follow this edge.
func (u *userResolver) Transactions(ctx context.Context) ([]*transactionResolver, error) {
	if err := u.self(); err != nil {
		return nil, u.root.fail(ctx, "user.transactions", err)
	}
	txs, err := u.root.Queries.ListTransactions(ctx, u.actor)
	if err != nil {
		return nil, u.root.fail(ctx, "user.transactions", err)
	}
	return u.root.transactions(u.actor, txs), nil
}

func (u *userResolver) Invoices(ctx context.Context) ([]*invoiceResolver, error) {
	if err := u.self(); err != nil {
		return nil, u.root.fail(ctx, "user.invoices", err)
	}
	invs, err := u.root.Queries.ListInvoices(ctx, u.actor)
	if err != nil {
		return nil, u.root.fail(ctx, "user.invoices", err)
	}
	return u.root.invoices(u.actor, invs), nil
}

func (u *userResolver) self() error {
	if !u.actor.Authenticated() {
		return ledger.ErrUnauthenticated
	}
	if u.actor.UserID != u.u.ID {
		return fmt.Errorf("user %d: %w", u.u.ID, ledger.ErrNotFound)
	}
	return nil
}

// =============================================================================
// TRANSACTION
// =============================================================================

type transactionResolver struct {
	root  *Resolver
	actor ledger.Actor
	tx    ledger.Transaction
}

func (t *transactionResolver) ID() graphql.ID      { return formatID(int64(t.tx.ID)) }
func (t *transactionResolver) Description() string { return t.tx.Description }
func (t *transactionResolver) Amount() float64     { return t.tx.Amount.InexactFloat64() }
func (t *transactionResolver) Date() string        { return ledger.FormatDate(t.tx.Date) }
func (t *transactionResolver) Type() string        { return string(t.tx.Kind) }
func (t *transactionResolver) Category() string    { return t.tx.Category }
func (t *transactionResolver) CreatedAt() string   { return formatTimestamp(t.tx.CreatedAt) }

func (t *transactionResolver) Invoice(ctx context.Context) (*invoiceResolver, error) {
	inv, err := t.root.Queries.TransactionInvoice(ctx, t.actor, t.tx)
	if err != nil {
		return nil, t.root.fail(ctx, "transaction.invoice", err)
	}
	if inv == nil {
		return nil, nil
	}
	return t.root.invoice(t.actor, *inv), nil
}

func (t *transactionResolver) User(ctx context.Context) (*userResolver, error) {
	u, err := t.root.Queries.TransactionOwner(ctx, t.actor, t.tx)
	if err != nil {
		return nil, t.root.fail(ctx, "transaction.user", err)
	}
	return t.root.user(t.actor, u), nil
}

// =============================================================================
// INVOICE
// =============================================================================

type invoiceResolver struct {
	root  *Resolver
	actor ledger.Actor
	inv   ledger.Invoice
}

func (i *invoiceResolver) ID() graphql.ID      { return formatID(int64(i.inv.ID)) }
func (i *invoiceResolver) Number() string      { return i.inv.Number }
func (i *invoiceResolver) ClientName() string  { return i.inv.ClientName }
func (i *invoiceResolver) ClientEmail() string { return i.inv.ClientEmail }
func (i *invoiceResolver) DueDate() string     { return ledger.FormatDate(i.inv.DueDate) }
func (i *invoiceResolver) Total() float64      { return i.inv.Total.InexactFloat64() }
func (i *invoiceResolver) Status() string      { return string(i.inv.Status) }
func (i *invoiceResolver) CreatedAt() string   { return formatTimestamp(i.inv.CreatedAt) }

func (i *invoiceResolver) Transactions(ctx context.Context) ([]*transactionResolver, error) {
	txs, err := i.root.Queries.InvoiceTransactions(ctx, i.actor, i.inv)
	if err != nil {
		return nil, i.root.fail(ctx, "invoice.transactions", err)
	}
	return i.root.transactions(i.actor, txs), nil
}

func (i *invoiceResolver) User(ctx context.Context) (*userResolver, error) {
	u, err := i.root.Queries.InvoiceOwner(ctx, i.actor, i.inv)
	if err != nil {
		return nil, i.root.fail(ctx, "invoice.user", err)
	}
	return i.root.user(i.actor, u), nil
}

// =============================================================================
// AUTH PAYLOAD
// =============================================================================

type authPayloadResolver struct {
	root    *Resolver
	session auth.Session
}

func (a *authPayloadResolver) Token() string { return a.session.Token }

// User acts as the freshly authenticated user; the request's own bearer
// credential (usually none) does not apply to it.
func (a *authPayloadResolver) User() *userResolver {
	return a.root.user(ledger.ActorFor(a.session.User.ID), a.session.User)
}
