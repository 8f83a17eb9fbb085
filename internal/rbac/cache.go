package rbac

import (
	"context"
	"sync"
	"time"
)

// Cache holds role name to permission list entries for the resolver.
//
// Every entry is tagged with the epoch it was computed under. Invalidate and
// Purge advance the epoch, and Set under a stale epoch is dropped, so a fill
// racing an invalidation can never resurrect old data.
type Cache interface {
	Epoch(ctx context.Context) (uint64, error)
	Get(ctx context.Context, epoch uint64, role string) ([]Permission, bool, error)
	Set(ctx context.Context, epoch uint64, role string, perms []Permission) error
	Invalidate(ctx context.Context, roles ...string) error
	Purge(ctx context.Context) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Epoch(context.Context) (uint64, error) { return 0, nil }
func (NoopCache) Get(context.Context, uint64, string) ([]Permission, bool, error) {
	return nil, false, nil
}
func (NoopCache) Set(context.Context, uint64, string, []Permission) error { return nil }
func (NoopCache) Invalidate(context.Context, ...string) error             { return nil }
func (NoopCache) Purge(context.Context) error                             { return nil }

type memoryEntry struct {
	epoch     uint64
	perms     []Permission
	expiresAt time.Time
}

// MemoryCache is a process-local cache with a fixed TTL. Invalidations reach
// only this process, so it suits a single instance; use RedisCache otherwise.
type MemoryCache struct {
	mu      sync.RWMutex
	epoch   uint64
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Epoch(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch, nil
}

func (c *MemoryCache) Get(_ context.Context, epoch uint64, role string) ([]Permission, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[role]
	if !ok || e.epoch != epoch || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return copyPermissions(e.perms), true, nil
}

func (c *MemoryCache) Set(_ context.Context, epoch uint64, role string, perms []Permission) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return nil
	}
	c.entries[role] = memoryEntry{
		epoch:     epoch,
		perms:     copyPermissions(perms),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, roles ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range roles {
		delete(c.entries, r)
	}
	c.epoch++
	// Untouched roles stay valid under the new epoch.
	for name, e := range c.entries {
		e.epoch = c.epoch
		c.entries[name] = e
	}
	return nil
}

func (c *MemoryCache) Purge(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)
	c.epoch++
	return nil
}

// Len reports stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyPermissions(perms []Permission) []Permission {
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
