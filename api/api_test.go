package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/cache"
	"github.com/warp/fintrack/ledger"
	"github.com/warp/fintrack/store/sqlite"
)

// =============================================================================
// HARNESS
// =============================================================================

type gqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (r gqlResponse) code() string {
	if len(r.Errors) == 0 {
		return ""
	}
	code, _ := r.Errors[0].Extensions["code"].(string)
	return code
}

type testServer struct {
	*httptest.Server
	store *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := auth.NewService(s, auth.NewTokens("api-test-secret", time.Hour), auth.NewPasswords(bcrypt.MinCost))
	svc.Logger = logger
	agg := ledger.NewAggregator(s)
	agg.Logger = logger

	router, err := NewRouter(Deps{
		Resolver: &Resolver{
			Ledger:     ledger.NewLedger(s),
			Aggregator: agg,
			Queries:    ledger.NewQueries(s, cache.NewLRU(16, time.Minute)),
			Auth:       svc,
		},
		Health:         s,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         logger,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: s}
}

func (ts *testServer) do(t *testing.T, token, query string, vars map[string]any) gqlResponse {
	t.Helper()

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	resp := ts.do(t, "", `mutation($email: String!) {
		signUp(email: $email, password: "hunter2hunter2", name: "Test User") { token user { id email } }
	}`, map[string]any{"email": email})
	require.Empty(t, resp.Errors)

	var data struct {
		SignUp struct {
			Token string `json:"token"`
		} `json:"signUp"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.SignUp.Token)
	return data.SignUp.Token
}

func (ts *testServer) createTransaction(t *testing.T, token string, amount float64) string {
	t.Helper()
	resp := ts.do(t, token, `mutation($amount: Float!) {
		createTransaction(description: "Consulting", amount: $amount, date: "2025-03-01", type: "income", category: "work") { id }
	}`, map[string]any{"amount": amount})
	require.Empty(t, resp.Errors)

	var data struct {
		CreateTransaction struct {
			ID string `json:"id"`
		} `json:"createTransaction"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.CreateTransaction.ID
}

const createInvoiceMutation = `mutation($ids: [ID!]!) {
	createInvoice(transactions: $ids, clientName: "Acme", clientEmail: "a@acme.com", dueDate: "2025-04-01") {
		id number total status dueDate
		transactions { id amount invoice { number } }
		user { email }
	}
}`

// =============================================================================
// TESTS
// =============================================================================

func TestGraphQL_SchemaParses(t *testing.T) {
	_, err := NewSchema(&Resolver{}, slog.Default())
	require.NoError(t, err)
}

func TestGraphQL_CreateInvoice_EndToEnd(t *testing.T) {
	// GIVEN: A user with three transactions
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	t1 := ts.createTransaction(t, token, 100)
	t2 := ts.createTransaction(t, token, 50)
	ts.createTransaction(t, token, 25)

	// WHEN: Two of them are invoiced
	resp := ts.do(t, token, createInvoiceMutation, map[string]any{"ids": []string{t1, t2}})
	require.Empty(t, resp.Errors)

	// THEN: The invoice totals them and both are linked
	var data struct {
		CreateInvoice struct {
			Number       string  `json:"number"`
			Total        float64 `json:"total"`
			Status       string  `json:"status"`
			DueDate      string  `json:"dueDate"`
			Transactions []struct {
				ID      string `json:"id"`
				Invoice struct {
					Number string `json:"number"`
				} `json:"invoice"`
			} `json:"transactions"`
			User struct {
				Email string `json:"email"`
			} `json:"user"`
		} `json:"createInvoice"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	inv := data.CreateInvoice
	assert.Equal(t, 150.0, inv.Total)
	assert.Equal(t, "PENDING", inv.Status)
	assert.Equal(t, "2025-04-01", inv.DueDate)
	assert.Regexp(t, `^INV-[0-9A-Z]{26}$`, inv.Number)
	assert.Equal(t, "fran@example.com", inv.User.Email)
	require.Len(t, inv.Transactions, 2)
	for _, tx := range inv.Transactions {
		assert.Equal(t, inv.Number, tx.Invoice.Number)
	}
}

func TestGraphQL_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signUp(t, "alice@example.com")
	bob := ts.signUp(t, "bob@example.com")
	bobTx := ts.createTransaction(t, bob, 10)
	aliceTx := ts.createTransaction(t, alice, 20)

	tests := []struct {
		name  string
		token string
		query string
		vars  map[string]any
		code  string
	}{
		{
			name:  "anonymous invoice",
			query: createInvoiceMutation,
			vars:  map[string]any{"ids": []string{aliceTx}},
			code:  ledger.CodeUnauthenticated,
		},
		{
			name:  "empty transaction set",
			token: alice,
			query: createInvoiceMutation,
			vars:  map[string]any{"ids": []string{}},
			code:  ledger.CodeInvalidArgument,
		},
		{
			name:  "foreign transaction",
			token: alice,
			query: createInvoiceMutation,
			vars:  map[string]any{"ids": []string{aliceTx, bobTx}},
			code:  ledger.CodeInvalidArgument,
		},
		{
			name:  "malformed id",
			token: alice,
			query: createInvoiceMutation,
			vars:  map[string]any{"ids": []string{"abc"}},
			code:  ledger.CodeInvalidArgument,
		},
		{
			name:  "anonymous malformed id",
			query: createInvoiceMutation,
			vars:  map[string]any{"ids": []string{"abc"}},
			code:  ledger.CodeUnauthenticated,
		},
		{
			name:  "anonymous bad due date",
			query: `mutation($ids: [ID!]!) { createInvoice(transactions: $ids, clientName: "Acme", clientEmail: "a@acme.com", dueDate: "03/01/2025") { id } }`,
			vars:  map[string]any{"ids": []string{aliceTx}},
			code:  ledger.CodeUnauthenticated,
		},
		{
			name:  "anonymous lookup with malformed id",
			query: `{ transaction(id: "abc") { id } }`,
			code:  ledger.CodeUnauthenticated,
		},
		{
			name:  "anonymous delete with malformed id",
			query: `mutation { deleteInvoice(id: "abc") }`,
			code:  ledger.CodeUnauthenticated,
		},
		{
			name:  "duplicate sign up",
			query: `mutation { signUp(email: "alice@example.com", password: "hunter2hunter2", name: "A") { token } }`,
			code:  ledger.CodeAlreadyExists,
		},
		{
			name:  "wrong password",
			query: `mutation { signIn(email: "alice@example.com", password: "wrong-password") { token } }`,
			code:  ledger.CodeInvalidCredentials,
		},
		{
			name:  "read someone else's transaction",
			token: alice,
			query: `query($id: ID!) { transaction(id: $id) { id } }`,
			vars:  map[string]any{"id": bobTx},
			code:  ledger.CodeNotFound,
		},
		{
			name:  "bad date",
			token: alice,
			query: `mutation { createTransaction(description: "x", amount: 1, date: "03/01/2025", type: "income", category: "c") { id } }`,
			code:  ledger.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.token, tt.query, tt.vars)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tt.code, resp.code())
		})
	}
}

func TestGraphQL_InvoiceTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	id := ts.createTransaction(t, token, 75)

	first := ts.do(t, token, createInvoiceMutation, map[string]any{"ids": []string{id}})
	require.Empty(t, first.Errors)

	second := ts.do(t, token, createInvoiceMutation, map[string]any{"ids": []string{id}})
	assert.Equal(t, ledger.CodeConflict, second.code())
}

func TestGraphQL_MeAndLists(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	ts.createTransaction(t, token, 10)
	ts.createTransaction(t, token, 20)

	resp := ts.do(t, token, `{
		me { email transactions { amount } invoices { id } }
		getTransactions { amount type date }
		getInvoices { id }
	}`, nil)
	require.Empty(t, resp.Errors)

	var data struct {
		Me struct {
			Email        string `json:"email"`
			Transactions []struct {
				Amount float64 `json:"amount"`
			} `json:"transactions"`
		} `json:"me"`
		GetTransactions []struct {
			Amount float64 `json:"amount"`
			Type   string  `json:"type"`
			Date   string  `json:"date"`
		} `json:"getTransactions"`
		GetInvoices []struct{} `json:"getInvoices"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "fran@example.com", data.Me.Email)
	assert.Len(t, data.Me.Transactions, 2)
	require.Len(t, data.GetTransactions, 2)
	assert.Equal(t, "income", data.GetTransactions[0].Type)
	assert.Equal(t, "2025-03-01", data.GetTransactions[0].Date)
	assert.Empty(t, data.GetInvoices)
}

func TestGraphQL_AnonymousMeIsNull(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "", `{ me { id } }`, nil)
	assert.Equal(t, ledger.CodeUnauthenticated, resp.code())
	assert.JSONEq(t, `{"me":null}`, string(resp.Data))
}

func TestGraphQL_SignInFollowsOwnEdges(t *testing.T) {
	// GIVEN: A user with one transaction
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	ts.createTransaction(t, token, 10)

	// WHEN: They sign in without a bearer token and follow user.transactions
	resp := ts.do(t, "", `mutation {
		signIn(email: "fran@example.com", password: "hunter2hunter2") { token user { transactions { id } invoices { id } } }
	}`, nil)

	// THEN: The nested fields resolve as the signed-in user
	require.Empty(t, resp.Errors)
	var data struct {
		SignIn struct {
			User struct {
				Transactions []struct {
					ID string `json:"id"`
				} `json:"transactions"`
				Invoices []struct {
					ID string `json:"id"`
				} `json:"invoices"`
			} `json:"user"`
		} `json:"signIn"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Len(t, data.SignIn.User.Transactions, 1)
	assert.Empty(t, data.SignIn.User.Invoices)
}

func TestGraphQL_UpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	id := ts.createTransaction(t, token, 10)

	resp := ts.do(t, token, `mutation($id: ID!) {
		updateTransaction(id: $id, amount: 12.5, category: "travel") { amount category description }
	}`, map[string]any{"id": id})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"updateTransaction":{"amount":12.5,"category":"travel","description":"Consulting"}}`, string(resp.Data))

	resp = ts.do(t, token, `mutation($id: ID!) { deleteTransaction(id: $id) }`, map[string]any{"id": id})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"deleteTransaction":true}`, string(resp.Data))
}

func TestGraphQL_CancelReleasesTransactions(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signUp(t, "fran@example.com")
	id := ts.createTransaction(t, token, 40)

	created := ts.do(t, token, createInvoiceMutation, map[string]any{"ids": []string{id}})
	require.Empty(t, created.Errors)
	var data struct {
		CreateInvoice struct {
			ID string `json:"id"`
		} `json:"createInvoice"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &data))

	resp := ts.do(t, token, `mutation($id: ID!) { updateInvoiceStatus(id: $id, status: CANCELLED) { status transactions { id } } }`,
		map[string]any{"id": data.CreateInvoice.ID})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"updateInvoiceStatus":{"status":"CANCELLED","transactions":[]}}`, string(resp.Data))

	again := ts.do(t, token, createInvoiceMutation, map[string]any{"ids": []string{id}})
	assert.Empty(t, again.Errors)
}

// =============================================================================
// HEALTH
// =============================================================================

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("disk on fire") }

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Database)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(downPinger{})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestToGraphQLError_HidesStorageDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	err := toGraphQLError(ctx, logger, "op", ledger.Storage("insert", errors.New("database is locked")))
	var gqlErr *Error
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, ledger.CodeStorageFailure, gqlErr.Code)
	assert.NotContains(t, gqlErr.Message, "locked")

	err = toGraphQLError(ctx, logger, "op", &ledger.ValidationError{Field: "clientEmail", Reason: "malformed"})
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, ledger.CodeInvalidArgument, gqlErr.Code)
	assert.Contains(t, gqlErr.Message, "clientEmail")
	assert.Equal(t, map[string]interface{}{"code": ledger.CodeInvalidArgument}, gqlErr.Extensions())
}
