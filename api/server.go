/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and the two routes the
  service exposes. This is the wiring layer that connects URLs to the
  GraphQL executor.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request, echoed in resolver error logs
  2. Logger:      Request logging
  3. Recoverer:   Panic recovery (500 instead of crash)
  4. RequestSize: Caps request bodies at MaxBodyBytes
  5. Timeout:     Cancels the request context after RequestTimeout
  6. CORS:        Cross-origin requests for the frontend
  7. Gate:        Bearer token -> actor in context (never rejects)

ROUTES:
  POST /graphql   GraphQL endpoint (queries and mutations)
  GET  /healthz   Liveness plus a database ping

SEE ALSO:
  - schema.go: SDL
  - resolver.go: Root resolver
  - handlers.go: Health handler
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/warp/fintrack/auth"
)

const (
	MaxBodyBytes   = 1 << 20
	RequestTimeout = 30 * time.Second
	MaxQueryDepth  = 8
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything NewRouter needs.
type Deps struct {
	Resolver       *Resolver
	Health         Pinger
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewSchema parses Schema against the resolver. A mismatch between the SDL
// and the resolver methods is reported here, at startup.
func NewSchema(resolver *Resolver, logger *slog.Logger) (*graphql.Schema, error) {
	schema, err := graphql.ParseSchema(Schema, resolver,
		graphql.MaxDepth(MaxQueryDepth),
		graphql.Logger(panicLogger{logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return schema, nil
}

// NewRouter creates a new router with all routes configured.
func NewRouter(d Deps) (*chi.Mux, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Resolver.Logger == nil {
		d.Resolver.Logger = logger
	}

	schema, err := NewSchema(d.Resolver, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(MaxBodyBytes))
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(auth.Gate(d.Resolver.Auth))

	r.Method(http.MethodPost, "/graphql", &relay.Handler{Schema: schema})
	r.Get("/healthz", healthHandler(d.Health))

	return r, nil
}

// panicLogger routes resolver panics caught by graphql-go into slog.
type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) LogPanic(ctx context.Context, value interface{}) {
	l.logger.ErrorContext(ctx, "Resolver panicked",
		"request_id", middleware.GetReqID(ctx),
		"panic", fmt.Sprint(value))
}
