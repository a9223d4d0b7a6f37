package compressed

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/golang/snappy"

	"github.com/bidscreen/bidscreen-server/policy"
)

// WithCompression wraps a Cache so that policies are snappy-compressed on their
// way in and transparently decompressed on their way out. This trades a little
// CPU for a much smaller memory (or remote storage) footprint, since policy
// documents are repetitive JSON.
func WithCompression(delegate policy.Cache) policy.Cache {
	return &snappyCache{
		delegate: delegate,
	}
}

type snappyCache struct {
	delegate policy.Cache
}

func (c *snappyCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	compressed := c.delegate.Get(ctx, ids)
	data := make(map[string]json.RawMessage, len(compressed))
	for id, val := range compressed {
		decoded, err := snappy.Decode(nil, val)
		if err != nil {
			// Bad entries are unusable. Drop them so the fetcher re-fetches.
			glog.Errorf("Error decompressing cached policy for account %s: %v", id, err)
			c.delegate.Invalidate(ctx, []string{id})
			continue
		}
		data[id] = decoded
	}
	return data
}

func (c *snappyCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	compressed := make(map[string]json.RawMessage, len(data))
	for id, val := range data {
		compressed[id] = snappy.Encode(nil, val)
	}
	c.delegate.Save(ctx, compressed)
}

func (c *snappyCache) Invalidate(ctx context.Context, ids []string) {
	c.delegate.Invalidate(ctx, ids)
}
