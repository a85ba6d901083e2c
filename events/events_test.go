package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fintrack/ledger"
)

type fakeChannel struct {
	declared  []string
	published []amqp091.Publishing
	keys      []string
	bindErr   error
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	f.declared = append(f.declared, "exchange:"+name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	f.declared = append(f.declared, "queue:"+name)
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp091.Table) error {
	f.declared = append(f.declared, "bind:"+name+"->"+exchange+"@"+key)
	return f.bindErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func sampleInvoice() ledger.Invoice {
	return ledger.Invoice{
		ID:          3,
		UserID:      1,
		Number:      "INV-01HZX",
		ClientName:  "Acme",
		ClientEmail: "a@acme.com",
		DueDate:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Total:       decimal.RequireFromString("150"),
		Status:      ledger.StatusPending,
	}
}

func TestInvoiceCreated_JSONRoundTrip(t *testing.T) {
	msg := NewInvoiceCreated(sampleInvoice(), []ledger.TransactionID{1, 2})
	assert.Equal(t, "150.00", msg.Total)
	assert.Equal(t, "2025-01-01", msg.DueDate)

	body, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"invoice.created"`)

	parsed, err := ParseInvoiceCreated(body)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, parsed.TransactionIDs)
	assert.Equal(t, "INV-01HZX", parsed.Number)

	_, err = ParseInvoiceCreated([]byte(`{"type":"something.else"}`))
	assert.Error(t, err)
}

func TestAMQP_DeclaresTopologyAndPublishesPersistent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQP(ch, "fintrack", "invoices", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"exchange:fintrack:direct",
		"queue:invoices",
		"bind:invoices->fintrack@invoices",
	}, ch.declared)

	err = Notifier{Publisher: p}.InvoiceCreated(context.Background(), sampleInvoice(), []ledger.TransactionID{1, 2})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "fintrack/invoices", ch.keys[0])
	assert.Equal(t, amqp091.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, TypeInvoiceCreated, pub.Type)

	msg, err := ParseInvoiceCreated(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.InvoiceID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQP_SetupFailureClosesChannel(t *testing.T) {
	ch := &fakeChannel{bindErr: errors.New("access refused")}
	_, err := newAMQP(ch, "fintrack", "invoices", nil)
	require.Error(t, err)
	assert.True(t, ch.closed)
}

func TestNop(t *testing.T) {
	err := Notifier{Publisher: Nop{}}.InvoiceCreated(context.Background(), sampleInvoice(), nil)
	assert.NoError(t, err)
}
