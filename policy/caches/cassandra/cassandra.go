package cassandra

import (
	"context"
	"encoding/json"

	"github.com/gocql/gocql"
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/policy"
)

// NewCache returns a Cache backed by a Cassandra cluster.
//
// It expects a table like:
//
//   CREATE TABLE policies (
//     account_id text PRIMARY KEY,
//     policy text
//   );
func NewCache(cfg config.CassandraCacheConfig, ttlSeconds int) policy.Cache {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalOne

	session, err := cluster.CreateSession()
	if err != nil {
		glog.Fatalf("Error connecting to Cassandra %v: %v", cfg.Hosts, err)
	}
	glog.Infof("Connected to Cassandra: %v keyspace %s", cfg.Hosts, cfg.Keyspace)

	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	return &cache{
		session: session,
		ttl:     ttlSeconds,
	}
}

type cache struct {
	session *gocql.Session
	ttl     int
}

func (c *cache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		var policyData string
		err := c.session.Query(`SELECT policy FROM policies WHERE account_id = ? LIMIT 1`, id).
			WithContext(ctx).
			Scan(&policyData)
		if err == nil {
			data[id] = json.RawMessage(policyData)
		} else if err != gocql.ErrNotFound {
			glog.Errorf("Error reading policy for account %s from Cassandra: %v", id, err)
		}
	}
	return data
}

func (c *cache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, policyData := range data {
		err := c.session.Query(`INSERT INTO policies (account_id, policy) VALUES (?, ?) USING TTL ?`, id, string(policyData), c.ttl).
			WithContext(ctx).
			Exec()
		if err != nil {
			glog.Errorf("Error saving policy for account %s in Cassandra: %v", id, err)
		}
	}
}

func (c *cache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		err := c.session.Query(`DELETE FROM policies WHERE account_id = ?`, id).
			WithContext(ctx).
			Exec()
		if err != nil {
			glog.Errorf("Error invalidating policy for account %s in Cassandra: %v", id, err)
		}
	}
}
