package blob

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/bucketsync/internal/profile"
)

const defaultCacheSize = 16

// StoreFactory builds a store for a profile.
type StoreFactory func(ctx context.Context, p *profile.Profile) (Store, error)

// DefaultFactory connects with NewS3StoreFromProfile.
func DefaultFactory(ctx context.Context, p *profile.Profile) (Store, error) {
	return NewS3StoreFromProfile(ctx, p)
}

// StoreCache keeps recently used stores keyed by profile so that repeated requests
// reuse the same client and its connection pool.
type StoreCache struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, cachedStore]
	factory StoreFactory
}

type cachedStore struct {
	store   Store
	profile profile.Profile
}

func NewStoreCache(size int, factory StoreFactory) (*StoreCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if factory == nil {
		factory = DefaultFactory
	}
	cache, err := lru.New[string, cachedStore](size)
	if err != nil {
		return nil, fmt.Errorf("store cache: %w", err)
	}
	return &StoreCache{cache: cache, factory: factory}, nil
}

// Get returns the cached store for p, rebuilding it when the profile changed since it was cached.
func (c *StoreCache) Get(ctx context.Context, p *profile.Profile) (Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.cache.Get(p.ID); ok && entry.profile == *p {
		return entry.store, nil
	}

	store, err := c.factory(ctx, p)
	if err != nil {
		return nil, err
	}
	c.cache.Add(p.ID, cachedStore{store: store, profile: *p})
	return store, nil
}

// Forget drops the store for a profile id, e.g. after the profile was deleted.
func (c *StoreCache) Forget(profileID string) {
	c.cache.Remove(profileID)
}

func (c *StoreCache) Len() int {
	return c.cache.Len()
}
