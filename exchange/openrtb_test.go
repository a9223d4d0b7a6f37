package exchange

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"

	"github.com/bidscreen/bidscreen-server/errortypes"
	"github.com/bidscreen/bidscreen-server/validation"
)

// ortbRequest offers one secure 300x250 banner impression.
func ortbRequest() *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID: "req-1",
		Imp: []openrtb.Imp{{
			ID: "imp-1",
			Banner: &openrtb.Banner{
				Format: []openrtb.Format{{W: 300, H: 250}},
				BAttr:  []openrtb.CreativeAttribute{1},
			},
		}},
	}
}

func ortbResponse(bids ...openrtb.Bid) *openrtb.BidResponse {
	return &openrtb.BidResponse{
		ID:      "req-1",
		SeatBid: []openrtb.SeatBid{{Seat: "seat-1", Bid: bids}},
	}
}

func TestScreenOpenRTBPassthrough(t *testing.T) {
	req := ortbRequest()
	resp := ortbResponse(openrtb.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.25})
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	assert.Len(t, resp.SeatBid[0].Bid, 1, "a compliant bid should survive untouched")
	assert.Equal(t, "bid-1", resp.SeatBid[0].Bid[0].ID)
	assert.Equal(t, 1, result.BidsIn)
	assert.Equal(t, 1, result.BidsOut)
	assert.Empty(t, result.Rejections)
}

func TestScreenOpenRTBPrunesBlockedAttribute(t *testing.T) {
	req := ortbRequest()
	resp := ortbResponse(
		openrtb.Bid{ID: "bid-1", ImpID: "imp-1", Price: 1.25, Attr: []openrtb.CreativeAttribute{1}},
		openrtb.Bid{ID: "bid-2", ImpID: "imp-1", Price: 0.75},
	)
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	require.Len(t, resp.SeatBid[0].Bid, 1, "the bid declaring a blocked attribute should be pruned")
	assert.Equal(t, "bid-2", resp.SeatBid[0].Bid[0].ID)
	assert.Equal(t, 1, result.Rejections[validation.ReasonExcludedAttribute])
	assert.Equal(t, 2, result.BidsIn)
	assert.Equal(t, 1, result.BidsOut)
}

func TestScreenOpenRTBDropsEmptySeats(t *testing.T) {
	req := ortbRequest()
	resp := &openrtb.BidResponse{
		ID: "req-1",
		SeatBid: []openrtb.SeatBid{
			{Seat: "seat-1", Bid: []openrtb.Bid{{ID: "bid-1", ImpID: "imp-1", Attr: []openrtb.CreativeAttribute{1}}}},
			{Seat: "seat-2", Bid: []openrtb.Bid{{ID: "bid-2", ImpID: "imp-1"}}},
		},
	}
	ex := newTestExchange(&stubPolicyFetcher{})

	_, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1, "a seat left without bids should be dropped")
	assert.Equal(t, "seat-2", resp.SeatBid[0].Seat)
}

func TestScreenOpenRTBUnknownImp(t *testing.T) {
	req := ortbRequest()
	resp := ortbResponse(openrtb.Bid{ID: "bid-1", ImpID: "no-such-imp"})
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	assert.Empty(t, resp.SeatBid)
	assert.Equal(t, 1, result.Rejections[validation.ReasonUnmatchedPlacement])
}

func TestScreenOpenRTBSecureImp(t *testing.T) {
	req := ortbRequest()
	req.Imp[0].Secure = pointer.Int8(1)
	resp := ortbResponse(
		openrtb.Bid{
			ID:    "bid-ssl",
			ImpID: "imp-1",
			Attr:  []openrtb.CreativeAttribute{openrtb.CreativeAttribute(validation.CreativeAttrSSL)},
			Ext:   json.RawMessage(`{"screening":{"click_through_urls":["https://example.com/landing"]}}`),
		},
		openrtb.Bid{ID: "bid-plain", ImpID: "imp-1"},
	)
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	require.Len(t, resp.SeatBid[0].Bid, 1)
	assert.Equal(t, "bid-ssl", resp.SeatBid[0].Bid[0].ID, "only the SSL-capable bid belongs on a secure impression")
	assert.Equal(t, 1, result.Rejections[validation.ReasonNeedsSSL])
}

func TestScreenOpenRTBPrivateAuction(t *testing.T) {
	req := ortbRequest()
	req.Imp[0].PMP = &openrtb.PMP{
		PrivateAuction: 1,
		Deals:          []openrtb.Deal{{ID: "123"}, {ID: "pref-deal-9"}},
	}
	resp := ortbResponse(
		openrtb.Bid{ID: "bid-numeric", ImpID: "imp-1", DealID: "123"},
		openrtb.Bid{ID: "bid-named", ImpID: "imp-1", DealID: "pref-deal-9"},
		openrtb.Bid{ID: "bid-open", ImpID: "imp-1"},
		openrtb.Bid{ID: "bid-unknown", ImpID: "imp-1", DealID: "456"},
	)
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	var kept []string
	for _, bid := range resp.SeatBid[0].Bid {
		kept = append(kept, bid.ID)
	}
	assert.Equal(t, []string{"bid-numeric", "bid-named"}, kept, "only bids referencing offered deals belong in a private auction")
	assert.Equal(t, 2, result.Rejections[validation.ReasonDealMismatch])
}

func TestScreenOpenRTBImpExtConstraints(t *testing.T) {
	req := ortbRequest()
	req.Imp[0].Ext = json.RawMessage(`{"screening":{"excluded_product_categories":[3],"allowed_vendor_types":[10]}}`)
	resp := ortbResponse(
		openrtb.Bid{
			ID:    "bid-1",
			ImpID: "imp-1",
			Ext:   json.RawMessage(`{"screening":{"categories":[3],"vendor_types":[10]}}`),
		},
		openrtb.Bid{
			ID:    "bid-2",
			ImpID: "imp-1",
			Ext:   json.RawMessage(`{"screening":{"vendor_types":[10]}}`),
		},
		openrtb.Bid{
			ID:    "bid-3",
			ImpID: "imp-1",
			Ext:   json.RawMessage(`{"screening":{"vendor_types":[11]}}`),
		},
	)
	ex := newTestExchange(&stubPolicyFetcher{})

	result, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	require.Len(t, resp.SeatBid[0].Bid, 1)
	assert.Equal(t, "bid-2", resp.SeatBid[0].Bid[0].ID)
	assert.Equal(t, 1, result.Rejections[validation.ReasonExcludedProductCategory])
	assert.Equal(t, 1, result.Rejections[validation.ReasonVendorNotAllowed])
}

func TestScreenOpenRTBMalformedExt(t *testing.T) {
	ex := newTestExchange(&stubPolicyFetcher{})

	req := ortbRequest()
	req.Imp[0].Ext = json.RawMessage(`{"screening":`)
	_, err := ex.ScreenOpenRTB(context.Background(), req, ortbResponse(), "")
	assert.IsType(t, &errortypes.BadInput{}, err)

	req = ortbRequest()
	resp := ortbResponse(openrtb.Bid{ID: "bid-1", ImpID: "imp-1", Ext: json.RawMessage(`not json`)})
	_, err = ex.ScreenOpenRTB(context.Background(), req, resp, "")
	assert.IsType(t, &errortypes.BadInput{}, err)
}

func TestScreenOpenRTBCurrency(t *testing.T) {
	testCases := []struct {
		name        string
		requestCurs []string
		responseCur string
		wantErr     bool
	}{
		{name: "both default to USD"},
		{name: "matching currency", requestCurs: []string{"EUR"}, responseCur: "EUR"},
		{name: "lowercase allowed currency", requestCurs: []string{"eur"}, responseCur: "EUR"},
		{name: "response in disallowed currency", requestCurs: []string{"EUR"}, responseCur: "USD", wantErr: true},
		{name: "response in unknown currency", responseCur: "XYZ", wantErr: true},
		{name: "empty response currency means USD", requestCurs: []string{"EUR"}, wantErr: true},
	}

	ex := newTestExchange(&stubPolicyFetcher{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := ortbRequest()
			req.Cur = tc.requestCurs
			resp := ortbResponse(openrtb.Bid{ID: "bid-1", ImpID: "imp-1"})
			resp.Cur = tc.responseCur

			_, err := ex.ScreenOpenRTB(context.Background(), req, resp, "")
			if tc.wantErr {
				assert.IsType(t, &errortypes.BadInput{}, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScreenOpenRTBNilArgs(t *testing.T) {
	ex := newTestExchange(&stubPolicyFetcher{})

	_, err := ex.ScreenOpenRTB(context.Background(), nil, &openrtb.BidResponse{}, "")
	assert.IsType(t, &errortypes.BadInput{}, err)

	_, err = ex.ScreenOpenRTB(context.Background(), &openrtb.BidRequest{}, nil, "")
	assert.IsType(t, &errortypes.BadInput{}, err)
}

func TestMapImp(t *testing.T) {
	m := newORTBMapping()
	slot, err := m.mapImp(&openrtb.Imp{
		ID: "imp-1",
		Banner: &openrtb.Banner{
			Format: []openrtb.Format{{W: 300, H: 250}, {W: 728, H: 90}},
			BAttr:  []openrtb.CreativeAttribute{1, 2},
		},
		Video:  &openrtb.Video{W: 640, H: 480, BAttr: []openrtb.CreativeAttribute{6}},
		Secure: pointer.Int8(1),
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(1), slot.ID)
	assert.Equal(t, []int64{300, 728, 640}, slot.Width)
	assert.Equal(t, []int64{250, 90, 480}, slot.Height)
	assert.Equal(t, []int32{1, 2, 6, validation.CreativeAttrNonSSL}, slot.ExcludedAttribute)
	assert.Equal(t, int64(1), m.slotByImp["imp-1"])
}

func TestDealIDMapping(t *testing.T) {
	m := newORTBMapping()

	assert.Equal(t, int64(0), m.dealID(""), "no deal reference maps to zero")
	assert.Equal(t, int64(123), m.dealID("123"), "numeric ids keep their value")

	named := m.dealID("pref-deal-9")
	assert.True(t, named < 0, "non-numeric ids get synthetic negative handles")
	assert.Equal(t, named, m.dealID("pref-deal-9"), "the same id maps to the same handle")
	assert.NotEqual(t, named, m.dealID("pref-deal-10"), "distinct ids get distinct handles")
}
