package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/fintrack/ledger"
	"github.com/warp/fintrack/ledger/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewMemory(), NewTokens("test-secret", time.Hour), NewPasswords(bcrypt.MinCost))
}

// =============================================================================
// SIGN UP / SIGN IN
// =============================================================================

func TestSignUp_ThenSignIn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	up, err := svc.SignUp(ctx, " Ada@Example.com ", "correct horse", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", up.User.Email)
	assert.NotEqual(t, "correct horse", up.User.PasswordHash)
	assert.Equal(t, ledger.ActorFor(up.User.ID), svc.Resolve(up.Token))

	in, err := svc.SignIn(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, up.User.ID, in.User.ID)
	assert.Equal(t, ledger.ActorFor(up.User.ID), svc.Resolve(in.Token))
}

func TestSignUp_Rejections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		userName string
		want     error
	}{
		{"duplicate email", "ADA@example.com", "another pass", "Ada 2", ledger.ErrAlreadyExists},
		{"malformed email", "ada-at-example", "correct horse", "Ada", ledger.ErrInvalidArgument},
		{"blank name", "bob@example.com", "correct horse", "  ", ledger.ErrInvalidArgument},
		{"short password", "bob@example.com", "short", "Bob", ledger.ErrInvalidArgument},
		{"long password", "bob@example.com", strings.Repeat("x", 73), "Bob", ledger.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.email, tt.password, tt.userName)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignIn_FailuresAreUndifferentiated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	_, wrongPassword := svc.SignIn(ctx, "ada@example.com", "wrong horse")
	_, unknownEmail := svc.SignIn(ctx, "nobody@example.com", "correct horse")

	assert.ErrorIs(t, wrongPassword, ledger.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ledger.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

// =============================================================================
// TOKENS
// =============================================================================

func TestTokens_ClaimsCarryUserID(t *testing.T) {
	tokens := NewTokens("s3cret", 0)
	raw, err := tokens.Issue(42)
	require.NoError(t, err)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(raw, &claims)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.WithinDuration(t, claims.IssuedAt.Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Second)
}

func TestTokens_VerifyRejects(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	good, err := tokens.Issue(7)
	require.NoError(t, err)

	id, err := tokens.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, ledger.UserID(7), id)

	other := NewTokens("other-secret", time.Hour)
	_, err = other.Verify(good)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong key")

	later := NewTokens("s3cret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Verify(good)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 7}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = tokens.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// =============================================================================
// GATE
// =============================================================================

func TestGate_ResolvesOrFallsBackToAnonymous(t *testing.T) {
	svc := newTestService(t)
	session, err := svc.SignUp(context.Background(), "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	var seen ledger.Actor
	h := Gate(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   ledger.Actor
	}{
		{"valid", "Bearer " + session.Token, ledger.ActorFor(session.User.ID)},
		{"lowercase scheme", "bearer " + session.Token, ledger.ActorFor(session.User.ID)},
		{"missing", "", ledger.Anonymous},
		{"wrong scheme", "Basic " + session.Token, ledger.Anonymous},
		{"garbage", "Bearer nonsense", ledger.Anonymous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestActorFrom_EmptyContext(t *testing.T) {
	assert.False(t, ActorFrom(context.Background()).Authenticated())
}
