package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/ledger"
	"github.com/warp/fintrack/store/sqlite"
)

func newLoader(t *testing.T) (*Loader, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &Loader{
		Auth:       auth.NewService(s, auth.NewTokens("seed-test-secret", time.Hour), auth.NewPasswords(bcrypt.MinCost)),
		Ledger:     ledger.NewLedger(s),
		Aggregator: ledger.NewAggregator(s),
	}, s
}

func TestScenario_Freelancer(t *testing.T) {
	// GIVEN: An empty database
	l, s := newLoader(t)
	ctx := context.Background()

	// WHEN: The freelancer scenario is loaded
	res, err := l.Load(ctx, "freelancer")
	require.NoError(t, err)

	// THEN: The Acme invoice totals the two consulting entries
	require.Len(t, res.Invoices, 1)
	inv := res.Invoices[0]
	assert.Equal(t, "150.00", inv.Total.StringFixed(2))
	assert.Equal(t, ledger.StatusPending, inv.Status)
	assert.Equal(t, "Acme", inv.ClientName)

	linked, err := s.ListTransactionsByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)

	// AND: The expense stays unbilled
	all, err := s.ListTransactionsByUser(ctx, inv.UserID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestScenario_Household(t *testing.T) {
	l, _ := newLoader(t)

	res, err := l.Load(context.Background(), "household")
	require.NoError(t, err)

	assert.Len(t, res.Transactions, 8)
	assert.Empty(t, res.Invoices)
	assert.NotEmpty(t, res.Token)
}

func TestScenario_Collections(t *testing.T) {
	// GIVEN: An empty database
	l, s := newLoader(t)
	ctx := context.Background()

	// WHEN: The collections scenario is loaded
	res, err := l.Load(ctx, "collections")
	require.NoError(t, err)

	// THEN: Three invoices exist with the expected statuses
	require.Len(t, res.Invoices, 3)
	assert.Equal(t, ledger.StatusPaid, res.Invoices[0].Status)
	assert.Equal(t, ledger.StatusCancelled, res.Invoices[1].Status)
	assert.Equal(t, ledger.StatusPending, res.Invoices[2].Status)
	assert.Equal(t, "2000.00", res.Invoices[0].Total.StringFixed(2))
	assert.Equal(t, "770.00", res.Invoices[2].Total.StringFixed(2))

	// AND: The cancelled invoice released its transaction to the new one
	released, err := s.ListTransactionsByInvoice(ctx, res.Invoices[1].ID)
	require.NoError(t, err)
	assert.Empty(t, released)

	rebilled, err := s.ListTransactionsByInvoice(ctx, res.Invoices[2].ID)
	require.NoError(t, err)
	assert.Len(t, rebilled, 2)
}

func TestScenario_LoadTwiceFails(t *testing.T) {
	l, _ := newLoader(t)
	ctx := context.Background()

	_, err := l.Load(ctx, "household")
	require.NoError(t, err)

	_, err = l.Load(ctx, "household")
	assert.True(t, errors.Is(err, ledger.ErrAlreadyExists))
}

func TestScenario_Unknown(t *testing.T) {
	l, _ := newLoader(t)

	_, err := l.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	l, _ := newLoader(t)

	for _, s := range Scenarios {
		t.Run(s.ID, func(t *testing.T) {
			_, err := l.Load(context.Background(), s.ID)
			assert.NoError(t, err)
		})
	}
}
