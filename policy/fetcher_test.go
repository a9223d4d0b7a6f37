package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bidscreen/bidscreen-server/metrics"
)

func setupFetcherWithCacheDeps() (*mockCache, *mockFetcher, Fetcher, *metrics.MetricsEngineMock) {
	cache := &mockCache{}
	metricsEngine := &metrics.MetricsEngineMock{}
	fetcher := &mockFetcher{}
	aFetcherWithCache := WithCache(fetcher, cache, metricsEngine)

	return cache, fetcher, aFetcherWithCache, metricsEngine
}

func TestPerfectCache(t *testing.T) {
	cache, fetcher, aFetcherWithCache, metricsEngine := setupFetcherWithCacheDeps()
	ids := []string{"known"}
	ctx := context.Background()

	cache.On("Get", ctx, ids).Return(
		map[string]json.RawMessage{
			"known": json.RawMessage(`{"private_auction":true}`),
		})
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheHit, 1)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheMiss, 0)

	data, errs := aFetcherWithCache.FetchPolicies(ctx, ids)

	cache.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	metricsEngine.AssertExpectations(t)
	assert.JSONEq(t, `{"private_auction":true}`, string(data["known"]), "FetchPolicies should fetch the right policy data")
	assert.Len(t, errs, 0, "FetchPolicies shouldn't return any errors")
}

func TestImperfectCache(t *testing.T) {
	cache, fetcher, aFetcherWithCache, metricsEngine := setupFetcherWithCacheDeps()
	ids := []string{"cached", "uncached"}
	ctx := context.Background()

	cache.On("Get", ctx, ids).Return(
		map[string]json.RawMessage{
			"cached": json.RawMessage(`true`),
		})
	fetcher.On("FetchPolicies", ctx, []string{"uncached"}).Return(
		map[string]json.RawMessage{
			"uncached": json.RawMessage(`false`),
		},
		[]error{},
	)
	cache.On("Save", ctx,
		map[string]json.RawMessage{
			"uncached": json.RawMessage(`false`),
		})
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheHit, 1)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheMiss, 1)

	data, errs := aFetcherWithCache.FetchPolicies(ctx, ids)

	cache.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	metricsEngine.AssertExpectations(t)
	assert.JSONEq(t, `true`, string(data["cached"]), "FetchPolicies should fetch the right policy data")
	assert.JSONEq(t, `false`, string(data["uncached"]), "FetchPolicies should fetch the right policy data")
	assert.Len(t, errs, 0, "FetchPolicies shouldn't return any errors")
}

func TestMissingData(t *testing.T) {
	cache, fetcher, aFetcherWithCache, metricsEngine := setupFetcherWithCacheDeps()
	ids := []string{"unknown"}
	ctx := context.Background()

	cache.On("Get", ctx, ids).Return(
		map[string]json.RawMessage{},
	)
	fetcher.On("FetchPolicies", ctx, ids).Return(
		map[string]json.RawMessage{},
		[]error{
			errors.New("Data not found"),
		},
	)
	cache.On("Save", ctx,
		map[string]json.RawMessage{},
	)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheHit, 0)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheMiss, 1)

	data, errs := aFetcherWithCache.FetchPolicies(ctx, ids)

	cache.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	metricsEngine.AssertExpectations(t)
	assert.Len(t, errs, 1, "FetchPolicies for missing data should return an error")
	assert.Len(t, data, 0, "FetchPolicies for missing data shouldn't return anything")
}

func TestCacheSaves(t *testing.T) {
	cache, fetcher, aFetcherWithCache, metricsEngine := setupFetcherWithCacheDeps()
	ctx := context.Background()

	cache.On("Get", ctx, []string{"abc", "abc"}).Return(
		map[string]json.RawMessage{
			"abc": json.RawMessage(`{}`),
		})
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheHit, 2)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheMiss, 0)

	data, errs := aFetcherWithCache.FetchPolicies(ctx, []string{"abc", "abc"})

	cache.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	metricsEngine.AssertExpectations(t)
	assert.Len(t, data, 1, "FetchPolicies should return data only once for duplicate ids")
	assert.JSONEq(t, `{}`, string(data["abc"]), "FetchPolicies should fetch the right policy data")
	assert.Len(t, errs, 0, "FetchPolicies with duplicate ids shouldn't return an error")
}

func TestComposedCache(t *testing.T) {
	c1 := &mockCache{}
	c2 := &mockCache{}
	c3 := &mockCache{}
	metricsEngine := &metrics.MetricsEngineMock{}
	fetcher := &mockFetcher{}
	aFetcherWithCache := WithCache(fetcher, ComposedCache{c1, c2, c3}, metricsEngine)
	ids := []string{"1", "2", "3"}
	ctx := context.Background()

	c1.On("Get", ctx, ids).Return(
		map[string]json.RawMessage{
			"1": json.RawMessage(`{"id": "1"}`),
		})
	c2.On("Get", ctx, []string{"2", "3"}).Return(
		map[string]json.RawMessage{
			"2": json.RawMessage(`{"id": "2"}`),
		})
	c3.On("Get", ctx, []string{"3"}).Return(
		map[string]json.RawMessage{
			"3": json.RawMessage(`{"id": "3"}`),
		})

	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheHit, 3)
	metricsEngine.On("RecordPolicyCacheResult", metrics.CacheMiss, 0)

	data, errs := aFetcherWithCache.FetchPolicies(ctx, ids)

	c1.AssertExpectations(t)
	c2.AssertExpectations(t)
	c3.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	metricsEngine.AssertExpectations(t)
	assert.Len(t, data, len(ids), "FetchPolicies should be able to return all policy data from a composed cache")
	assert.Len(t, errs, 0, "FetchPolicies shouldn't return an error when trying to use a composed cache")
	assert.JSONEq(t, `{"id": "1"}`, string(data["1"]), "FetchPolicies should fetch the right policy data")
	assert.JSONEq(t, `{"id": "2"}`, string(data["2"]), "FetchPolicies should fetch the right policy data")
	assert.JSONEq(t, `{"id": "3"}`, string(data["3"]), "FetchPolicies should fetch the right policy data")
}

func TestComposedCacheInvalidateAndSave(t *testing.T) {
	c1 := &mockCache{}
	c2 := &mockCache{}
	composed := ComposedCache{c1, c2}
	ctx := context.Background()
	data := map[string]json.RawMessage{"acct": json.RawMessage(`{}`)}

	c1.On("Save", ctx, data)
	c2.On("Save", ctx, data)
	composed.Save(ctx, data)

	c1.On("Invalidate", ctx, []string{"acct"})
	c2.On("Invalidate", ctx, []string{"acct"})
	composed.Invalidate(ctx, []string{"acct"})

	c1.AssertExpectations(t)
	c2.AssertExpectations(t)
}

type mockFetcher struct {
	mock.Mock
}

func (f *mockFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	args := f.Called(ctx, accountIDs)
	return args.Get(0).(map[string]json.RawMessage), args.Get(1).([]error)
}

type mockCache struct {
	mock.Mock
}

func (c *mockCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	args := c.Called(ctx, ids)
	return args.Get(0).(map[string]json.RawMessage)
}

func (c *mockCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	c.Called(ctx, data)
}

func (c *mockCache) Invalidate(ctx context.Context, ids []string) {
	c.Called(ctx, ids)
}
