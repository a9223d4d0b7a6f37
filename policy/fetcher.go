package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bidscreen/bidscreen-server/metrics"
)

// Fetcher knows how to fetch policy documents by account id.
//
// Implementations must be safe for concurrent access by multiple goroutines.
// Callers are expected to share a single instance as much as possible.
type Fetcher interface {
	// FetchPolicies fetches the policies for the given account ids.
	//
	// The returned map will have a key for every id in the accountIDs list,
	// unless errors exist.
	//
	// The returned objects can only be read from. They may not be written to.
	FetchPolicies(ctx context.Context, accountIDs []string) (data map[string]json.RawMessage, errs []error)
}

// NotFoundError is an error type to flag that an account has no policy.
// This exists so that MultiFetcher, and any other caller which expects
// some ids to be absent, can disentangle those errors from real failures.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(`Policy for account "%s" not found.`, e.ID)
}

// Cache is an intermediate layer which can be used to build more complex
// Fetchers by composition. Implementations must be safe for concurrent
// access by multiple goroutines.
//
// To add a Cache layer in front of a Fetcher, see WithCache().
type Cache interface {
	// Get works much like Fetcher.FetchPolicies, with a few exceptions:
	//
	// 1. Any (actionable) errors should be logged by the implementation, rather than returned.
	// 2. The returned map _may_ be written to.
	// 3. The returned map must _not_ contain keys unless they were present in the argument id list.
	// 4. Callers _should not_ assume that the returned map has a key for every argument id.
	//    The returned map will miss entries for ids which don't exist in the cache.
	Get(ctx context.Context, ids []string) (data map[string]json.RawMessage)

	// Invalidate will ensure that all values associated with the given ids
	// are no longer returned by the cache until new values are saved via Save.
	Invalidate(ctx context.Context, ids []string)

	// Save will add or overwrite the data in the cache at the given keys.
	Save(ctx context.Context, data map[string]json.RawMessage)
}

// ComposedCache creates an interface to treat a slice of caches as a single cache
type ComposedCache []Cache

// Get will attempt to Get from the caches in the order in which they are in the slice,
// stopping as soon as a value is found (or when all caches have been exhausted)
func (c ComposedCache) Get(ctx context.Context, ids []string) (data map[string]json.RawMessage) {
	data = make(map[string]json.RawMessage, len(ids))

	remainingIDs := ids

	for _, cache := range c {
		cachedData := cache.Get(ctx, remainingIDs)
		data, remainingIDs = updateFromCache(data, remainingIDs, cachedData)

		// finish early if all ids filled
		if len(remainingIDs) == 0 {
			break
		}
	}

	return
}

func updateFromCache(data map[string]json.RawMessage, ids []string, newData map[string]json.RawMessage) (map[string]json.RawMessage, []string) {
	remainingIDs := ids

	if len(newData) > 0 {
		remainingIDs = make([]string, 0, len(ids))

		for _, id := range ids {
			if policy, ok := newData[id]; ok {
				data[id] = policy
			} else {
				remainingIDs = append(remainingIDs, id)
			}
		}
	}

	return data, remainingIDs
}

// Invalidate will propagate invalidations to all underlying caches
func (c ComposedCache) Invalidate(ctx context.Context, ids []string) {
	for _, cache := range c {
		cache.Invalidate(ctx, ids)
	}
}

// Save will propagate saves to all underlying caches
func (c ComposedCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for _, cache := range c {
		cache.Save(ctx, data)
	}
}

type fetcherWithCache struct {
	fetcher       Fetcher
	cache         Cache
	metricsEngine metrics.MetricsEngine
}

// WithCache returns a Fetcher which uses the given Cache before delegating to the original.
// This can be called multiple times to compose Cache layers onto the backing Fetcher, though
// it is usually more desirable to first compose caches with ComposedCache, ensuring
// propagation of updates and invalidations through all cache layers.
func WithCache(fetcher Fetcher, cache Cache, metricsEngine metrics.MetricsEngine) Fetcher {
	return &fetcherWithCache{
		cache:         cache,
		fetcher:       fetcher,
		metricsEngine: metricsEngine,
	}
}

func (f *fetcherWithCache) FetchPolicies(ctx context.Context, accountIDs []string) (data map[string]json.RawMessage, errs []error) {
	data = f.cache.Get(ctx, accountIDs)

	leftovers := findLeftovers(accountIDs, data)

	f.metricsEngine.RecordPolicyCacheResult(metrics.CacheHit, len(accountIDs)-len(leftovers))
	f.metricsEngine.RecordPolicyCacheResult(metrics.CacheMiss, len(leftovers))

	if len(leftovers) > 0 {
		fetcherData, fetcherErrs := f.fetcher.FetchPolicies(ctx, leftovers)
		errs = fetcherErrs

		f.cache.Save(ctx, fetcherData)

		data = mergeData(data, fetcherData)
	}

	return
}

func findLeftovers(ids []string, data map[string]json.RawMessage) (leftovers []string) {
	leftovers = make([]string, 0, len(ids)-len(data))
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			leftovers = append(leftovers, id)
		}
	}
	return
}

func mergeData(cachedData map[string]json.RawMessage, fetchedData map[string]json.RawMessage) (mergedData map[string]json.RawMessage) {
	mergedData = cachedData
	if mergedData == nil {
		mergedData = fetchedData
	} else {
		for key, value := range fetchedData {
			mergedData[key] = value
		}
	}

	return
}
