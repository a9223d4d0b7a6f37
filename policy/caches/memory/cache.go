package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coocood/freecache"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/policy"
)

// NewCache returns an in-memory Cache which evicts items if:
//
// 1. They haven't been used within the TTL.
// 2. The cache is too large. This will cause the least recently used items to be evicted.
//
// For no TTL, use ttlSeconds <= 0.
// For an unbounded cache, use size <= 0. Unbounded caches ignore the TTL.
func NewCache(size int, ttlSeconds int) policy.Cache {
	if size <= 0 {
		glog.Info("No policy cache size limit. Using an unbounded cache.")
		return &unboundedCache{
			&sync.Map{},
		}
	}
	glog.Infof("Using a policy LRU cache. size-bytes: %d, ttl-seconds: %d", size, ttlSeconds)
	return &lruCache{
		cache:      freecache.NewCache(size),
		ttlSeconds: ttlSeconds,
	}
}

type lruCache struct {
	cache      *freecache.Cache
	ttlSeconds int
}

func (c *lruCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if bytes, err := c.cache.Get([]byte(id)); err == nil {
			data[id] = bytes
		} else if err != freecache.ErrNotFound {
			glog.Errorf("unexpected error from freecache: %v", err)
		}
	}
	return data
}

func (c *lruCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		if err := c.cache.Set([]byte(id), policyData, c.ttlSeconds); err != nil {
			glog.Errorf("error saving policy for account %s in the cache: %v", id, err)
		}
	}
}

func (c *lruCache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.cache.Del([]byte(id))
	}
}

type unboundedCache struct {
	dataCache *sync.Map
}

func (c *unboundedCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if val, ok := c.dataCache.Load(id); ok {
			data[id] = val.(json.RawMessage)
		}
	}
	return data
}

func (c *unboundedCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		c.dataCache.Store(id, policyData)
	}
}

func (c *unboundedCache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.dataCache.Delete(id)
	}
}
