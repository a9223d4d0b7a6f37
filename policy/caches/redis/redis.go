package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/policy"
)

const keyPrefix = "policy:"

// NewCache returns a Cache backed by a remote Redis server.
//
// The server is shared state. Policies saved by one instance are visible to
// every other instance pointed at the same server, so invalidations from the
// events API only need to reach one of them.
func NewCache(cfg config.RedisCacheConfig, ttlSeconds int) policy.Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping().Result(); err != nil {
		glog.Fatalf("Error connecting to Redis at %s: %v", cfg.Addr, err)
	}
	glog.Infof("Connected to Redis at %s", cfg.Addr)

	return &cache{
		client: client,
		ttl:    ttlDuration(ttlSeconds),
	}
}

func ttlDuration(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		return 0
	}
	return time.Duration(ttlSeconds) * time.Second
}

type cache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *cache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	results, err := c.client.MGet(keys...).Result()
	if err != nil {
		glog.Errorf("Error reading policies from Redis: %v", err)
		return nil
	}

	data := make(map[string]json.RawMessage, len(ids))
	for i, result := range results {
		if result == nil {
			continue
		}
		if val, ok := result.(string); ok {
			data[ids[i]] = json.RawMessage(val)
		}
	}
	return data
}

func (c *cache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		if err := c.client.Set(keyPrefix+id, []byte(policyData), c.ttl).Err(); err != nil {
			glog.Errorf("Error saving policy for account %s in Redis: %v", id, err)
		}
	}
}

func (c *cache) Invalidate(ctx context.Context, ids []string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if err := c.client.Del(keys...).Err(); err != nil {
		glog.Errorf("Error invalidating policies in Redis: %v", err)
	}
}
