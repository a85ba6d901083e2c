/*
Package events announces committed invoices to other systems.

PURPOSE:
  After the Aggregator commits an invoice it tells a ledger.Notifier. The
  Notifier here turns that into an InvoiceCreated message and hands it to a
  Publisher: Nop when no broker is configured, AMQP (RabbitMQ) otherwise.

DELIVERY:
  At most once, best effort. Publishing happens after commit and a failure
  is logged by the caller; the invoice exists regardless. Consumers needing
  completeness should reconcile against the invoices table.

SEE ALSO:
  - ledger/aggregator.go: Notifier call site
  - amqp.go: RabbitMQ publisher
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/fintrack/ledger"
)

const TypeInvoiceCreated = "invoice.created"

// InvoiceCreated is the message body published for a new invoice.
type InvoiceCreated struct {
	Type           string    `json:"type"`
	InvoiceID      int64     `json:"invoice_id"`
	Number         string    `json:"number"`
	UserID         int64     `json:"user_id"`
	ClientName     string    `json:"client_name"`
	ClientEmail    string    `json:"client_email"`
	DueDate        string    `json:"due_date"`
	Total          string    `json:"total"`
	Status         string    `json:"status"`
	TransactionIDs []int64   `json:"transaction_ids"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewInvoiceCreated builds the message for inv and its linked transactions.
func NewInvoiceCreated(inv ledger.Invoice, txIDs []ledger.TransactionID) InvoiceCreated {
	ids := make([]int64, len(txIDs))
	for i, id := range txIDs {
		ids[i] = int64(id)
	}
	return InvoiceCreated{
		Type:           TypeInvoiceCreated,
		InvoiceID:      int64(inv.ID),
		Number:         inv.Number,
		UserID:         int64(inv.UserID),
		ClientName:     inv.ClientName,
		ClientEmail:    inv.ClientEmail,
		DueDate:        ledger.FormatDate(inv.DueDate),
		Total:          inv.Total.StringFixed(ledger.MoneyPlaces),
		Status:         string(inv.Status),
		TransactionIDs: ids,
		OccurredAt:     time.Now().UTC(),
	}
}

func (m InvoiceCreated) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseInvoiceCreated decodes a message body and checks its type.
func ParseInvoiceCreated(body []byte) (InvoiceCreated, error) {
	var m InvoiceCreated
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("decode invoice event: %w", err)
	}
	if m.Type != TypeInvoiceCreated {
		return m, fmt.Errorf("unexpected event type %q", m.Type)
	}
	return m, nil
}

// =============================================================================
// PUBLISHERS
// =============================================================================

type Publisher interface {
	PublishInvoiceCreated(ctx context.Context, msg InvoiceCreated) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) PublishInvoiceCreated(context.Context, InvoiceCreated) error { return nil }

// Notifier adapts a Publisher to ledger.Notifier.
type Notifier struct {
	Publisher Publisher
}

var _ ledger.Notifier = Notifier{}

func (n Notifier) InvoiceCreated(ctx context.Context, inv ledger.Invoice, txIDs []ledger.TransactionID) error {
	return n.Publisher.PublishInvoiceCreated(ctx, NewInvoiceCreated(inv, txIDs))
}
