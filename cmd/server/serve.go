package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warp/fintrack/api"
	"github.com/warp/fintrack/auth"
	"github.com/warp/fintrack/cache"
	"github.com/warp/fintrack/config"
	"github.com/warp/fintrack/events"
	"github.com/warp/fintrack/ledger"
	"github.com/warp/fintrack/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// app holds the wired services and the resources they own.
type app struct {
	store      *sqlite.Store
	auth       *auth.Service
	ledger     *ledger.Ledger
	aggregator *ledger.Aggregator
	queries    *ledger.Queries

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}
}

// newApp opens the store, runs migrations and wires every service from c.
// Optional backends (Redis, AMQP) are only dialed when configured.
func newApp(ctx context.Context, c *config.Config, log *slog.Logger) (*app, error) {
	store, err := sqlite.New(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{store: store, closers: []func() error{store.Close}}

	var users ledger.UserCache
	if c.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, c.Cache.RedisURL, c.Cache.TTL, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		users = rc
		log.Info("Owner cache: redis")
	} else {
		users = cache.NewLRU(c.Cache.Size, c.Cache.TTL)
		log.Info("Owner cache: in-process LRU", "size", c.Cache.Size)
	}

	var publisher events.Publisher = events.Nop{}
	if c.AMQP.URL != "" {
		p, err := events.DialAMQP(c.AMQP.URL, c.AMQP.Exchange, c.AMQP.Queue, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
		log.Info("Invoice events enabled", "exchange", c.AMQP.Exchange, "queue", c.AMQP.Queue)
	}

	a.auth = auth.NewService(store, auth.NewTokens(c.Auth.JWTSecret, c.Auth.TokenTTL), auth.NewPasswords(c.Auth.BcryptCost))
	a.auth.Logger = log

	a.ledger = ledger.NewLedger(store)

	a.aggregator = ledger.NewAggregator(store)
	a.aggregator.Ownership = c.Invoice.Ownership
	a.aggregator.Relink = c.Invoice.Relink
	a.aggregator.Notifier = events.Notifier{Publisher: publisher}
	a.aggregator.Logger = log

	a.queries = ledger.NewQueries(store, users)
	return a, nil
}

func runServe(ctx context.Context) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve (set FINTRACK_AUTH_JWT_SECRET)")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := api.NewRouter(api.Deps{
		Resolver: &api.Resolver{
			Ledger:     a.ledger,
			Aggregator: a.aggregator,
			Queries:    a.queries,
			Auth:       a.auth,
			Logger:     logger,
		},
		Health:         a.store,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting",
			"addr", cfg.HTTP.Addr,
			"ownership_policy", cfg.Invoice.Ownership,
			"relink_policy", cfg.Invoice.Relink)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
