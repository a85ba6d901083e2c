/*
resolver.go - Root GraphQL resolver (Query and Mutation fields)

PURPOSE:
  Translates GraphQL fields into ledger and auth calls. Resolvers hold no
  business rules: they parse IDs, dates and amounts, read the actor the Gate
  middleware put in the context, call one domain method, and wrap the
  result in an object resolver (types.go).

IDENTITY FIRST:
  Fields that need a caller check it before parsing arguments, matching
  the order the ledger applies (anonymous beats malformed input).

ARGUMENT PARSING:
  ID     -> int64            (malformed -> INVALID_ARGUMENT on "id")
  Float  -> decimal.Decimal  (rounded to two places by the ledger)
  String -> time.Time        for YYYY-MM-DD dates

ERRORS:
  Every error leaves through toGraphQLError (errors.go), which sets
  extensions.code and hides storage details.

SEE ALSO:
  - schema.go: SDL
  - types.go: User, Transaction, Invoice, AuthPayload resolvers
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/shopspring/decimal"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/ledger"
)

// Resolver is the root resolver for both Query and Mutation.
type Resolver struct {
	Ledger     *ledger.Ledger
	Aggregator *ledger.Aggregator
	Queries    *ledger.Queries
	Auth       *auth.Service
	Logger     *slog.Logger
}

func (r *Resolver) fail(ctx context.Context, op string, err error) error {
	return toGraphQLError(ctx, r.logger(), op, err)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// caller returns the authenticated actor. Fields that need an identity call
// it before parsing any argument, so an anonymous caller always sees
// UNAUTHENTICATED rather than a complaint about its input.
func (r *Resolver) caller(ctx context.Context) (ledger.Actor, error) {
	actor := auth.ActorFrom(ctx)
	if !actor.Authenticated() {
		return actor, ledger.ErrUnauthenticated
	}
	return actor, nil
}

// =============================================================================
// QUERY
// =============================================================================

func (r *Resolver) Me(ctx context.Context) (*userResolver, error) {
	actor := auth.ActorFrom(ctx)
	u, err := r.Queries.Me(ctx, actor)
	if err != nil {
		return nil, r.fail(ctx, "me", err)
	}
	return r.user(actor, u), nil
}

func (r *Resolver) GetTransactions(ctx context.Context) ([]*transactionResolver, error) {
	actor := auth.ActorFrom(ctx)
	txs, err := r.Queries.ListTransactions(ctx, actor)
	if err != nil {
		return nil, r.fail(ctx, "getTransactions", err)
	}
	return r.transactions(actor, txs), nil
}

func (r *Resolver) GetInvoices(ctx context.Context) ([]*invoiceResolver, error) {
	actor := auth.ActorFrom(ctx)
	invs, err := r.Queries.ListInvoices(ctx, actor)
	if err != nil {
		return nil, r.fail(ctx, "getInvoices", err)
	}
	return r.invoices(actor, invs), nil
}

func (r *Resolver) Transaction(ctx context.Context, args struct{ ID graphql.ID }) (*transactionResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "transaction", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return nil, r.fail(ctx, "transaction", err)
	}
	tx, err := r.Queries.Transaction(ctx, actor, ledger.TransactionID(id))
	if err != nil {
		return nil, r.fail(ctx, "transaction", err)
	}
	return r.transaction(actor, tx), nil
}

func (r *Resolver) Invoice(ctx context.Context, args struct{ ID graphql.ID }) (*invoiceResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "invoice", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return nil, r.fail(ctx, "invoice", err)
	}
	inv, err := r.Queries.Invoice(ctx, actor, ledger.InvoiceID(id))
	if err != nil {
		return nil, r.fail(ctx, "invoice", err)
	}
	return r.invoice(actor, inv), nil
}

// =============================================================================
// MUTATION - Auth
// =============================================================================

func (r *Resolver) SignUp(ctx context.Context, args struct {
	Email    string
	Password string
	Name     string
}) (*authPayloadResolver, error) {
	session, err := r.Auth.SignUp(ctx, args.Email, args.Password, args.Name)
	if err != nil {
		return nil, r.fail(ctx, "signUp", err)
	}
	return &authPayloadResolver{root: r, session: session}, nil
}

func (r *Resolver) SignIn(ctx context.Context, args struct {
	Email    string
	Password string
}) (*authPayloadResolver, error) {
	session, err := r.Auth.SignIn(ctx, args.Email, args.Password)
	if err != nil {
		return nil, r.fail(ctx, "signIn", err)
	}
	return &authPayloadResolver{root: r, session: session}, nil
}

// =============================================================================
// MUTATION - Transactions
// =============================================================================

func (r *Resolver) CreateTransaction(ctx context.Context, args struct {
	Description string
	Amount      float64
	Date        string
	Type        string
	Category    string
}) (*transactionResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "createTransaction", err)
	}
	date, err := parseDate("date", args.Date)
	if err != nil {
		return nil, r.fail(ctx, "createTransaction", err)
	}

	tx, err := r.Ledger.CreateTransaction(ctx, actor, ledger.TransactionInput{
		Description: args.Description,
		Amount:      decimal.NewFromFloat(args.Amount),
		Date:        date,
		Kind:        parseKind(args.Type),
		Category:    args.Category,
	})
	if err != nil {
		return nil, r.fail(ctx, "createTransaction", err)
	}
	return r.transaction(actor, tx), nil
}

func (r *Resolver) UpdateTransaction(ctx context.Context, args struct {
	ID          graphql.ID
	Description *string
	Amount      *float64
	Date        *string
	Type        *string
	Category    *string
}) (*transactionResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "updateTransaction", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return nil, r.fail(ctx, "updateTransaction", err)
	}

	patch := ledger.TransactionPatch{
		Description: args.Description,
		Category:    args.Category,
	}
	if args.Amount != nil {
		amount := decimal.NewFromFloat(*args.Amount)
		patch.Amount = &amount
	}
	if args.Date != nil {
		date, err := parseDate("date", *args.Date)
		if err != nil {
			return nil, r.fail(ctx, "updateTransaction", err)
		}
		patch.Date = &date
	}
	if args.Type != nil {
		kind := parseKind(*args.Type)
		patch.Kind = &kind
	}

	tx, err := r.Ledger.UpdateTransaction(ctx, actor, ledger.TransactionID(id), patch)
	if err != nil {
		return nil, r.fail(ctx, "updateTransaction", err)
	}
	return r.transaction(actor, tx), nil
}

func (r *Resolver) DeleteTransaction(ctx context.Context, args struct{ ID graphql.ID }) (bool, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return false, r.fail(ctx, "deleteTransaction", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return false, r.fail(ctx, "deleteTransaction", err)
	}
	deleted, err := r.Ledger.DeleteTransaction(ctx, actor, ledger.TransactionID(id))
	if err != nil {
		return false, r.fail(ctx, "deleteTransaction", err)
	}
	return deleted, nil
}

// =============================================================================
// MUTATION - Invoices
// =============================================================================

func (r *Resolver) CreateInvoice(ctx context.Context, args struct {
	Transactions []graphql.ID
	ClientName   string
	ClientEmail  string
	DueDate      string
}) (*invoiceResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "createInvoice", err)
	}

	ids := make([]ledger.TransactionID, 0, len(args.Transactions))
	for _, raw := range args.Transactions {
		id, err := parseID(raw)
		if err != nil {
			return nil, r.fail(ctx, "createInvoice", &ledger.ValidationError{
				Field: "transactions", Reason: fmt.Sprintf("malformed id %q", string(raw)),
			})
		}
		ids = append(ids, ledger.TransactionID(id))
	}

	var due time.Time
	if strings.TrimSpace(args.DueDate) != "" {
		d, err := parseDate("dueDate", args.DueDate)
		if err != nil {
			return nil, r.fail(ctx, "createInvoice", err)
		}
		due = d
	}

	inv, err := r.Aggregator.CreateInvoice(ctx, actor, ledger.InvoiceRequest{
		TransactionIDs: ids,
		ClientName:     args.ClientName,
		ClientEmail:    args.ClientEmail,
		DueDate:        due,
	})
	if err != nil {
		return nil, r.fail(ctx, "createInvoice", err)
	}
	return r.invoice(actor, inv), nil
}

func (r *Resolver) UpdateInvoiceStatus(ctx context.Context, args struct {
	ID     graphql.ID
	Status string
}) (*invoiceResolver, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return nil, r.fail(ctx, "updateInvoiceStatus", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return nil, r.fail(ctx, "updateInvoiceStatus", err)
	}
	inv, err := r.Ledger.UpdateInvoiceStatus(ctx, actor, ledger.InvoiceID(id), ledger.InvoiceStatus(args.Status))
	if err != nil {
		return nil, r.fail(ctx, "updateInvoiceStatus", err)
	}
	return r.invoice(actor, inv), nil
}

func (r *Resolver) DeleteInvoice(ctx context.Context, args struct{ ID graphql.ID }) (bool, error) {
	actor, err := r.caller(ctx)
	if err != nil {
		return false, r.fail(ctx, "deleteInvoice", err)
	}
	id, err := parseID(args.ID)
	if err != nil {
		return false, r.fail(ctx, "deleteInvoice", err)
	}
	deleted, err := r.Ledger.DeleteInvoice(ctx, actor, ledger.InvoiceID(id))
	if err != nil {
		return false, r.fail(ctx, "deleteInvoice", err)
	}
	return deleted, nil
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

func parseID(id graphql.ID) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil || n <= 0 {
		return 0, &ledger.ValidationError{Field: "id", Reason: fmt.Sprintf("malformed id %q", string(id))}
	}
	return n, nil
}

func formatID(id int64) graphql.ID {
	return graphql.ID(strconv.FormatInt(id, 10))
}

func parseDate(field, s string) (time.Time, error) {
	t, err := ledger.ParseDate(s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Reason: "use YYYY-MM-DD"}
	}
	return t, nil
}

func parseKind(s string) ledger.Kind {
	return ledger.Kind(strings.ToLower(strings.TrimSpace(s)))
}
