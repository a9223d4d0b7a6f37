package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/errortypes"
	metricsConf "github.com/bidscreen/bidscreen-server/metrics/config"
	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/bidscreen/bidscreen-server/validation"
)

// stubPolicyFetcher serves canned policy documents and errors.
type stubPolicyFetcher struct {
	data map[string]json.RawMessage
	errs []error
}

func (f *stubPolicyFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	data := make(map[string]json.RawMessage, len(accountIDs))
	for _, id := range accountIDs {
		if doc, ok := f.data[id]; ok {
			data[id] = doc
		}
	}
	return data, f.errs
}

func newTestExchange(fetcher policy.Fetcher) Exchange {
	return NewExchange(fetcher, nil, &metricsConf.DummyMetricsEngine{})
}

// nativePair builds a one-slot request (flash excluded) and a two-ad response
// where the second ad declares the excluded attribute.
func nativePair() (*adx.BidRequest, *adx.BidResponse) {
	req := &adx.BidRequest{
		ID: "req-1",
		AdSlot: []adx.AdSlot{{
			ID:                1,
			ExcludedAttribute: []int32{7},
		}},
	}
	resp := &adx.BidResponse{
		Ad: []adx.Ad{
			{
				Attribute: []int32{8},
				AdSlot:    []adx.Bid{{ID: 1, MaxCpmMicros: 100000000}},
			},
			{
				Attribute: []int32{7},
				AdSlot:    []adx.Bid{{ID: 1, MaxCpmMicros: 200000000}},
			},
		},
	}
	return req, resp
}

func TestScreenNative(t *testing.T) {
	req, resp := nativePair()
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenNative(context.Background(), req, resp, "")
	require.NoError(t, err)

	assert.Len(t, resp.Ad, 1, "the violating ad should be pruned")
	assert.Equal(t, int64(100000000), resp.Ad[0].AdSlot[0].MaxCpmMicros, "the compliant bid should survive")
	assert.Equal(t, 2, result.AdsIn)
	assert.Equal(t, 1, result.AdsOut)
	assert.Equal(t, 2, result.BidsIn)
	assert.Equal(t, 1, result.BidsOut)
	assert.Equal(t, map[validation.Reason]int{validation.ReasonExcludedAttribute: 1}, result.Rejections)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.TransactionID, "every transaction should be stamped with an id")
}

func TestScreenNativeCleanResponse(t *testing.T) {
	req, resp := nativePair()
	resp.Ad = resp.Ad[:1]
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenNative(context.Background(), req, resp, "")
	require.NoError(t, err)

	assert.Len(t, resp.Ad, 1)
	assert.Empty(t, result.Rejections)
	assert.Equal(t, result.AdsIn, result.AdsOut)
}

func TestScreenNativeNilArgs(t *testing.T) {
	ex := newTestExchange(&stubPolicyFetcher{})

	_, err := ex.ScreenNative(context.Background(), nil, &adx.BidResponse{}, "")
	assert.IsType(t, &errortypes.BadInput{}, err, "a nil request should be rejected as bad input")

	_, err = ex.ScreenNative(context.Background(), &adx.BidRequest{}, nil, "")
	assert.IsType(t, &errortypes.BadInput{}, err, "a nil response should be rejected as bad input")
}

func TestScreenNativeAppliesAccountPolicy(t *testing.T) {
	req := &adx.BidRequest{
		ID:     "req-1",
		AdSlot: []adx.AdSlot{{ID: 1}},
	}
	resp := &adx.BidResponse{
		Ad: []adx.Ad{{
			Attribute: []int32{7},
			AdSlot:    []adx.Bid{{ID: 1}},
		}},
	}
	fetcher := &stubPolicyFetcher{data: map[string]json.RawMessage{
		"acct": json.RawMessage(`{"excluded_attribute":[7]}`),
	}}
	ex := newTestExchange(fetcher)

	result, err := ex.ScreenNative(context.Background(), req, resp, "acct")
	require.NoError(t, err)

	assert.Empty(t, resp.Ad, "the account's default exclusions should prune the ad")
	assert.Equal(t, 1, result.Rejections[validation.ReasonExcludedAttribute])
	assert.Empty(t, result.Errors)
}

func TestScreenNativeRequestWinsOverPolicy(t *testing.T) {
	req := &adx.BidRequest{
		ID: "req-1",
		AdSlot: []adx.AdSlot{{
			ID:                1,
			ExcludedAttribute: []int32{3},
		}},
	}
	resp := &adx.BidResponse{
		Ad: []adx.Ad{{
			Attribute: []int32{7},
			AdSlot:    []adx.Bid{{ID: 1}},
		}},
	}
	fetcher := &stubPolicyFetcher{data: map[string]json.RawMessage{
		"acct": json.RawMessage(`{"excluded_attribute":[7]}`),
	}}
	ex := newTestExchange(fetcher)

	result, err := ex.ScreenNative(context.Background(), req, resp, "acct")
	require.NoError(t, err)

	assert.Len(t, resp.Ad, 1, "the request's own exclusion list should replace the default one")
	assert.Empty(t, result.Rejections)
}

func TestScreenNativeIgnoresMissingPolicy(t *testing.T) {
	req, resp := nativePair()
	fetcher := &stubPolicyFetcher{errs: []error{policy.NotFoundError{ID: "acct"}}}
	ex := newTestExchange(fetcher)

	result, err := ex.ScreenNative(context.Background(), req, resp, "acct")
	require.NoError(t, err)

	assert.Empty(t, result.Errors, "an account without a policy is not an error")
	assert.Len(t, resp.Ad, 1, "screening should proceed without defaults")
}

func TestScreenNativeReportsPolicyFetchErrors(t *testing.T) {
	req, resp := nativePair()
	fetcher := &stubPolicyFetcher{errs: []error{errors.New("connection refused")}}
	ex := newTestExchange(fetcher)

	result, err := ex.ScreenNative(context.Background(), req, resp, "acct")
	require.NoError(t, err, "a policy fetch failure must not fail the transaction")

	assert.Len(t, result.Errors, 1)
	assert.Len(t, resp.Ad, 1, "screening should proceed without defaults")
}

func TestTransactionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		id := newTransactionID()
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "transaction ids should not repeat")
		seen[id] = true
	}
}
