package cachestest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bidscreen/bidscreen-server/policy"
)

const (
	cacheKey = "known-account"
	cacheVal = `{"private_auction":true}`
)

// AssertCacheRobustness runs tests which can be used to validate any Cache that is 100% reliable.
// That is, its Save() and Invalidate() functions _always_ work.
//
// The cacheSupplier should be a function which returns a new Cache (with no data inside) on every call.
// This will be called from separate Goroutines to make sure that different tests don't conflict.
func AssertCacheRobustness(t *testing.T, cacheSupplier func() policy.Cache) {
	t.Run("TestCacheMiss", cacheMissTester(cacheSupplier()))
	t.Run("TestCacheHit", cacheHitTester(cacheSupplier()))
	t.Run("TestCacheSaveInvalidate", cacheSaveInvalidateTester(cacheSupplier()))
}

func cacheMissTester(cache policy.Cache) func(*testing.T) {
	return func(t *testing.T) {
		storedData := cache.Get(context.Background(), []string{"unknown"})
		assertMapLength(t, 0, storedData)
	}
}

func cacheHitTester(cache policy.Cache) func(*testing.T) {
	return func(t *testing.T) {
		cache.Save(context.Background(), map[string]json.RawMessage{
			cacheKey: json.RawMessage(cacheVal),
		})
		data := cache.Get(context.Background(), []string{cacheKey})
		assertMapLength(t, 1, data)
		assertHasValue(t, data, cacheKey, cacheVal)
	}
}

func cacheSaveInvalidateTester(cache policy.Cache) func(*testing.T) {
	return func(t *testing.T) {
		cache.Save(context.Background(), map[string]json.RawMessage{
			cacheKey: json.RawMessage(cacheVal),
		})
		data := cache.Get(context.Background(), []string{cacheKey})
		assertMapLength(t, 1, data)

		cache.Invalidate(context.Background(), []string{cacheKey})
		data = cache.Get(context.Background(), []string{cacheKey})
		assertMapLength(t, 0, data)
	}
}

func assertMapLength(t *testing.T, expectedLen int, theMap map[string]json.RawMessage) {
	t.Helper()
	if len(theMap) != expectedLen {
		t.Errorf("Wrong map length. Expected %d, Got %d.", expectedLen, len(theMap))
	}
}

func assertHasValue(t *testing.T, m map[string]json.RawMessage, key string, val string) {
	t.Helper()
	realVal, ok := m[key]
	if !ok {
		t.Errorf("Map missing required key: %s", key)
	}
	if val != string(realVal) {
		t.Errorf("Unexpected value at key %s. Expected %s, Got %s", key, val, string(realVal))
	}
}
