package lootpack

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PoolLoader fetches the active weighted mappings for one pack type, ordered
// by descending weight. The postgres store implements it.
type PoolLoader interface {
	PoolMappings(ctx context.Context, packTypeID string) ([]WeightedMapping, error)
}

// PoolCache memoizes one built RewardPool per pack type. Reads are served
// from a shared map under a read lock; a miss builds the pool outside any
// lock, so readers of other pools never wait on a build.
//
// The cache is single-process. Staleness is handled by the explicit
// invalidation contract: the admin mutation path emits a config event and the
// consumer calls Invalidate, forcing a rebuild on next access.
type PoolCache struct {
	mu     sync.RWMutex
	pools  map[string]*RewardPool
	loader PoolLoader
	logger zerolog.Logger
}

// NewPoolCache creates an empty cache over the given loader.
func NewPoolCache(loader PoolLoader, logger zerolog.Logger) *PoolCache {
	return &PoolCache{
		pools:  make(map[string]*RewardPool),
		loader: loader,
		logger: logger.With().Str("component", "pool_cache").Logger(),
	}
}

// GetOrBuild returns the cached pool for the pack type, building and storing
// it on miss. A hit performs no storage access. Two racing builders may both
// load; the later insert wins, which is harmless because pools are immutable
// views of the same configuration.
func (c *PoolCache) GetOrBuild(ctx context.Context, packTypeID string) (*RewardPool, error) {
	c.mu.RLock()
	pool, ok := c.pools[packTypeID]
	c.mu.RUnlock()
	if ok {
		return pool, nil
	}

	mappings, err := c.loader.PoolMappings(ctx, packTypeID)
	if err != nil {
		return nil, err
	}
	pool = BuildPool(mappings)

	c.mu.Lock()
	c.pools[packTypeID] = pool
	c.mu.Unlock()

	c.logger.Debug().
		Str("pack_type_id", packTypeID).
		Int("entries", pool.Size()).
		Int("total_weight", pool.TotalWeight()).
		Msg("Reward pool built")

	return pool, nil
}

// Invalidate drops the cached pool for one pack type.
func (c *PoolCache) Invalidate(packTypeID string) {
	c.mu.Lock()
	delete(c.pools, packTypeID)
	c.mu.Unlock()

	c.logger.Info().Str("pack_type_id", packTypeID).Msg("Reward pool invalidated")
}

// InvalidateAll drops every cached pool.
func (c *PoolCache) InvalidateAll() {
	c.mu.Lock()
	c.pools = make(map[string]*RewardPool)
	c.mu.Unlock()

	c.logger.Info().Msg("All reward pools invalidated")
}

// Len returns the number of cached pools.
func (c *PoolCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools)
}
