package exchange

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/policy"
)

func TestMergeSlotDefaults(t *testing.T) {
	testCases := []struct {
		name     string
		slot     adx.AdSlot
		defaults string
		want     adx.AdSlot
	}{
		{
			name:     "defaults fill unset fields",
			slot:     adx.AdSlot{ID: 1},
			defaults: `{"excluded_attribute":[34,48],"private_auction":true}`,
			want: adx.AdSlot{
				ID:                1,
				ExcludedAttribute: []int32{34, 48},
				PrivateAuction:    true,
			},
		},
		{
			name: "request lists replace default lists",
			slot: adx.AdSlot{
				ID:                1,
				ExcludedAttribute: []int32{7},
			},
			defaults: `{"excluded_attribute":[34,48],"excluded_product_category":[3]}`,
			want: adx.AdSlot{
				ID:                      1,
				ExcludedAttribute:       []int32{7},
				ExcludedProductCategory: []int32{3},
			},
		},
		{
			name:     "defaults never override the placement id",
			slot:     adx.AdSlot{ID: 4},
			defaults: `{"id":99,"allowed_vendor_type":[10]}`,
			want: adx.AdSlot{
				ID:                4,
				AllowedVendorType: []int32{10},
			},
		},
		{
			name: "deals merge like any other field",
			slot: adx.AdSlot{ID: 1},
			defaults: `{"matching_ad_data":[{"direct_deal":[{"direct_deal_id":5}]}],` +
				`"private_auction":true}`,
			want: adx.AdSlot{
				ID:             1,
				MatchingAdData: []adx.MatchingAdData{{DirectDeal: []adx.DirectDeal{{DirectDealID: 5}}}},
				PrivateAuction: true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slot := tc.slot
			require.NoError(t, mergeSlotDefaults(&slot, json.RawMessage(tc.defaults)))
			assert.Equal(t, tc.want, slot)
		})
	}
}

func TestMergeSlotDefaultsMalformed(t *testing.T) {
	slot := adx.AdSlot{ID: 1}
	err := mergeSlotDefaults(&slot, json.RawMessage(`{"excluded_attribute":`))
	assert.Error(t, err, "a truncated policy document should be reported")
}

func TestDropNotFound(t *testing.T) {
	fetchErr := errors.New("connection refused")
	errs := dropNotFound([]error{
		policy.NotFoundError{ID: "a"},
		fetchErr,
		policy.NotFoundError{ID: "b"},
	})

	require.Len(t, errs, 1)
	assert.Equal(t, fetchErr, errs[0])
}
