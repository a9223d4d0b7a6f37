package aerospike

import (
	"context"
	"encoding/json"

	as "github.com/aerospike/aerospike-client-go"
	astypes "github.com/aerospike/aerospike-client-go/types"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/policy"
)

const (
	setName = "policy"
	binName = "policy"
)

const defaultPort = 3000

// NewCache returns a Cache backed by an Aerospike cluster.
// Policies are stored as a single string bin in the configured namespace.
func NewCache(cfg config.AerospikeCacheConfig, ttlSeconds int) policy.Cache {
	hosts := make([]*as.Host, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		hosts[i] = as.NewHost(h, defaultPort)
	}
	client, err := as.NewClientWithPolicyAndHost(nil, hosts...)
	if err != nil {
		glog.Fatalf("Error connecting to Aerospike %v: %v", cfg.Hosts, err)
	}
	glog.Infof("Connected to Aerospike: %v namespace %s", cfg.Hosts, cfg.Namespace)

	ttl := uint32(as.TTLServerDefault)
	if ttlSeconds > 0 {
		ttl = uint32(ttlSeconds)
	}
	return &cache{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       ttl,
	}
}

type cache struct {
	client    *as.Client
	namespace string
	ttl       uint32
}

func (c *cache) writePolicy() *as.WritePolicy {
	return as.NewWritePolicy(0, c.ttl)
}

func (c *cache) asKey(id string) (*as.Key, error) {
	return as.NewKey(c.namespace, setName, id)
}

func (c *cache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		key, err := c.asKey(id)
		if err != nil {
			glog.Errorf("Error building Aerospike key for account %s: %v", id, err)
			continue
		}
		rec, err := c.client.Get(nil, key, binName)
		if err != nil {
			if !isKeyNotFound(err) {
				glog.Errorf("Error reading policy for account %s from Aerospike: %v", id, err)
			}
			continue
		}
		if value, ok := rec.Bins[binName].(string); ok {
			data[id] = json.RawMessage(value)
		}
	}
	return data
}

func (c *cache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		key, err := c.asKey(id)
		if err != nil {
			glog.Errorf("Error building Aerospike key for account %s: %v", id, err)
			continue
		}
		if err := c.client.PutBins(c.writePolicy(), key, as.NewBin(binName, string(policyData))); err != nil {
			glog.Errorf("Error saving policy for account %s in Aerospike: %v", id, err)
		}
	}
}

func (c *cache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		key, err := c.asKey(id)
		if err != nil {
			glog.Errorf("Error building Aerospike key for account %s: %v", id, err)
			continue
		}
		if _, err := c.client.Delete(c.writePolicy(), key); err != nil {
			glog.Errorf("Error invalidating policy for account %s in Aerospike: %v", id, err)
		}
	}
}

func isKeyNotFound(err error) bool {
	if aerr, ok := err.(astypes.AerospikeError); ok {
		return aerr.ResultCode() == astypes.KEY_NOT_FOUND_ERROR
	}
	return false
}
