package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fintrack/ledger"
)

func sampleUser(id ledger.UserID) ledger.User {
	return ledger.User{
		ID:           id,
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "$2a$10$secret",
		CreatedAt:    time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC),
	}
}

// =============================================================================
// LRU
// =============================================================================

func TestLRU_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	c.Set(ctx, sampleUser(1))
	got, ok := c.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
	assert.Empty(t, got.PasswordHash)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	c.Set(ctx, sampleUser(1))
	c.Set(ctx, sampleUser(2))
	_, _ = c.Get(ctx, 1)
	c.Set(ctx, sampleUser(3))

	_, ok := c.Get(ctx, 2)
	assert.False(t, ok, "2 was least recently used")
	_, ok = c.Get(ctx, 1)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 20*time.Millisecond)

	c.Set(ctx, sampleUser(1))
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, 1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// REDIS
// =============================================================================

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c := NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedis_RoundTripWithoutPasswordHash(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	c.Set(ctx, sampleUser(7))

	raw, err := mr.Get("fintrack:user:7")
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret")
	assert.Equal(t, time.Minute, mr.TTL("fintrack:user:7"))

	got, ok := c.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, ledger.UserID(7), got.ID)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.True(t, got.CreatedAt.Equal(sampleUser(7).CreatedAt))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, 7)
	assert.False(t, ok)
}

func TestRedis_ErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, mr.Set("fintrack:user:1", "{not json"))
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	mr.Close()
	_, ok = c.Get(ctx, 2)
	assert.False(t, ok)
	c.Set(ctx, sampleUser(2)) // logged, not fatal
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", time.Minute, nil)
	assert.Error(t, err)
}
