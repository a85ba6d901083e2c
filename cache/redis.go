package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/fintrack/ledger"
)

// Redis stores users as JSON under "fintrack:user:<id>".
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ledger.UserCache = (*Redis)(nil)

type cachedUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedis connects to url (redis://[:password@]host:port/db) and checks
// the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisClient(client, ttl, logger), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

func (c *Redis) Get(ctx context.Context, id ledger.UserID) (ledger.User, bool) {
	data, err := c.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "Redis GET failed", "user_id", id, "error", err)
		}
		return ledger.User{}, false
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		c.logger.WarnContext(ctx, "Failed to unmarshal cached user", "user_id", id, "error", err)
		return ledger.User{}, false
	}
	return ledger.User{
		ID:        ledger.UserID(cu.ID),
		Email:     cu.Email,
		Name:      cu.Name,
		CreatedAt: cu.CreatedAt,
	}, true
}

func (c *Redis) Set(ctx context.Context, u ledger.User) {
	data, err := json.Marshal(cachedUser{
		ID:        int64(u.ID),
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to marshal user for cache", "user_id", u.ID, "error", err)
		return
	}
	if err := c.client.Set(ctx, userKey(u.ID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Redis SET failed", "user_id", u.ID, "error", err)
	}
}

// Close releases the client's connections.
func (c *Redis) Close() error { return c.client.Close() }

func userKey(id ledger.UserID) string {
	return fmt.Sprintf("fintrack:user:%d", id)
}
