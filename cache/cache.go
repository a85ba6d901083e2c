/*
Package cache provides ledger.UserCache implementations for owner lookups.

PURPOSE:
  Every nested `user` field in a GraphQL response resolves an owner by ID.
  User rows are small and change rarely, so they are cached.

IMPLEMENTATIONS:
  LRU:   In-process, size-bounded, per-entry TTL (default)
  Redis: Shared across server processes (cache.redis_url)

WHAT IS CACHED:
  ID, email, name and creation time. The password hash is never written to
  a cache; sign-in reads the store directly.

FAILURE MODES:
  Cache errors are logged and reported as misses. A broken cache slows
  requests down; it never fails them.
*/
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warp/fintrack/ledger"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 5 * time.Minute
)

// public strips fields that must not leave the store.
func public(u ledger.User) ledger.User {
	u.PasswordHash = ""
	return u
}

// =============================================================================
// LRU
// =============================================================================

type LRU struct {
	users *lru.LRU[ledger.UserID, ledger.User]
}

var _ ledger.UserCache = (*LRU)(nil)

// NewLRU holds up to size users, each for at most ttl.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{users: lru.NewLRU[ledger.UserID, ledger.User](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, id ledger.UserID) (ledger.User, bool) {
	return c.users.Get(id)
}

func (c *LRU) Set(_ context.Context, u ledger.User) {
	c.users.Add(u.ID, public(u))
}

// Len returns the number of live entries.
func (c *LRU) Len() int { return c.users.Len() }
