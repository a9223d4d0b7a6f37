package memcache

import (
	"context"
	"encoding/json"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/policy"
)

// NewCache returns a Cache backed by a Memcache cluster.
func NewCache(cfg config.MemcacheConfig, ttlSeconds int) policy.Cache {
	glog.Infof("Connecting to Memcache: %v", cfg.Hosts)
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	return &cache{
		client: memcache.New(cfg.Hosts...),
		ttl:    int32(ttlSeconds),
	}
}

type cache struct {
	client *memcache.Client
	ttl    int32
}

func (c *cache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	if len(ids) == 0 {
		return nil
	}

	items, err := c.client.GetMulti(ids)
	if err != nil {
		glog.Errorf("Error reading policies from Memcache: %v", err)
		return nil
	}

	data := make(map[string]json.RawMessage, len(items))
	for id, item := range items {
		data[id] = item.Value
	}
	return data
}

func (c *cache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		item := &memcache.Item{
			Key:        id,
			Value:      policyData,
			Expiration: c.ttl,
		}
		if err := c.client.Set(item); err != nil {
			glog.Errorf("Error saving policy for account %s in Memcache: %v", id, err)
		}
	}
}

func (c *cache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := c.client.Delete(id); err != nil && err != memcache.ErrCacheMiss {
			glog.Errorf("Error invalidating policy for account %s in Memcache: %v", id, err)
		}
	}
}
