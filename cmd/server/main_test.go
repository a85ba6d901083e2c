package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FINTRACK_DATABASE_PATH", ":memory:")
	t.Setenv("FINTRACK_AUTH_BCRYPT_COST", "4")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fintrack dev\n", out)
}

func TestMigrateVersion_FreshDatabase(t *testing.T) {
	out, err := run(t, "migrate", "version")
	require.NoError(t, err)
	assert.Equal(t, "schema version 0\n", out)
}

func TestSeed_List(t *testing.T) {
	out, err := run(t, "seed", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "freelancer")
	assert.Contains(t, out, "collections")
}

func TestSeed_Freelancer(t *testing.T) {
	t.Setenv("FINTRACK_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	out, err := run(t, "seed", "freelancer")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded freelancer: 3 transactions, 1 invoices")
	assert.Contains(t, out, "150.00")
}

func TestSeed_RequiresSecret(t *testing.T) {
	t.Setenv("FINTRACK_AUTH_JWT_SECRET", "")

	_, err := run(t, "seed", "freelancer")
	assert.Error(t, err)
}

func TestServe_RequiresSecret(t *testing.T) {
	t.Setenv("FINTRACK_AUTH_JWT_SECRET", "")

	_, err := run(t, "serve")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	t.Setenv("FINTRACK_INVOICE_RELINK_POLICY", "sometimes")

	_, err := run(t, "seed", "--list")
	assert.ErrorContains(t, err, "invoice.relink_policy")
}
