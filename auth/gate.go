package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/fintrack/ledger"
)

type actorKey struct{}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor ledger.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by Gate, or ledger.Anonymous.
func ActorFrom(ctx context.Context) ledger.Actor {
	if a, ok := ctx.Value(actorKey{}).(ledger.Actor); ok {
		return a
	}
	return ledger.Anonymous
}

// Gate resolves the bearer credential on every request and stores the
// resulting actor in the request context. It never rejects a request;
// operations that need an identity fail on their own.
func Gate(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := svc.Resolve(BearerToken(r))
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
