package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mxmCherry/openrtb"
	goCurrency "golang.org/x/text/currency"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/errortypes"
	"github.com/bidscreen/bidscreen-server/openrtb_ext"
	"github.com/bidscreen/bidscreen-server/validation"
)

const microsPerCurrencyUnit = 1000000

func (e *exchange) ScreenOpenRTB(ctx context.Context, req *openrtb.BidRequest, resp *openrtb.BidResponse, account string) (*ScreenResult, error) {
	result := newScreenResult()
	if req == nil {
		return result, &errortypes.BadInput{Message: "request is required"}
	}
	if resp == nil {
		return result, &errortypes.BadInput{Message: "response is required"}
	}

	if err := validateResponseCurrency(req.Cur, resp.Cur); err != nil {
		return result, &errortypes.BadInput{Message: err.Error()}
	}

	m := newORTBMapping()
	screenReq, err := m.mapRequest(req)
	if err != nil {
		return result, &errortypes.BadInput{Message: err.Error()}
	}
	screenResp, refs, err := m.mapResponse(resp)
	if err != nil {
		return result, &errortypes.BadInput{Message: err.Error()}
	}

	// Every OpenRTB bid screens as its own single-bid ad, so the ad and bid
	// counts coincide on this path.
	result.AdsIn = len(screenResp.Ad)
	result.BidsIn = len(screenResp.Ad)

	if err := e.screen(ctx, screenReq, screenResp, account, result); err != nil {
		return result, err
	}

	pruneToSurvivors(resp, screenResp, refs)

	result.AdsOut = len(screenResp.Ad)
	result.BidsOut = len(screenResp.Ad)
	return result, nil
}

// validateResponseCurrency makes sure the response currency is a valid ISO
// code the request accepts. By design, the default currency is USD on both
// sides.
func validateResponseCurrency(requestAllowedCurrencies []string, responseCurrency string) error {
	defaultCurrency := "USD"
	if responseCurrency == "" {
		responseCurrency = defaultCurrency
	}
	currencyUnit, err := goCurrency.ParseISO(responseCurrency)
	if err != nil {
		return err
	}
	if len(requestAllowedCurrencies) == 0 {
		requestAllowedCurrencies = []string{defaultCurrency}
	}
	for _, allowedCurrency := range requestAllowedCurrencies {
		if strings.ToUpper(allowedCurrency) == currencyUnit.String() {
			return nil
		}
	}
	return fmt.Errorf(
		"Response currency is not allowed. Was '%s', wants: ['%s']",
		currencyUnit.String(),
		strings.Join(requestAllowedCurrencies, "', '"),
	)
}

// ortbMapping carries the identifier translations built while converting an
// OpenRTB pair to the native protocol, so the pruning outcome can be mapped
// back onto the OpenRTB response afterwards.
type ortbMapping struct {
	slotByImp map[string]int64
	deals     map[string]int64
	nextDeal  int64
}

func newORTBMapping() *ortbMapping {
	return &ortbMapping{
		slotByImp: make(map[string]int64),
		deals:     make(map[string]int64),
	}
}

func (m *ortbMapping) mapRequest(req *openrtb.BidRequest) (*adx.BidRequest, error) {
	screenReq := &adx.BidRequest{
		ID:     req.ID,
		AdSlot: make([]adx.AdSlot, 0, len(req.Imp)),
	}
	for i := range req.Imp {
		slot, err := m.mapImp(&req.Imp[i], i)
		if err != nil {
			return nil, err
		}
		screenReq.AdSlot = append(screenReq.AdSlot, slot)
	}
	return screenReq, nil
}

// mapImp builds the placement screened in place of an OpenRTB impression.
// Slot ids are ordinals, assigned in impression order starting from 1.
func (m *ortbMapping) mapImp(imp *openrtb.Imp, index int) (adx.AdSlot, error) {
	slot := adx.AdSlot{ID: int64(index + 1)}
	m.slotByImp[imp.ID] = slot.ID

	if imp.Banner != nil {
		for _, format := range imp.Banner.Format {
			slot.Width = append(slot.Width, int64(format.W))
			slot.Height = append(slot.Height, int64(format.H))
		}
		slot.ExcludedAttribute = appendAttrs(slot.ExcludedAttribute, imp.Banner.BAttr)
	}
	if imp.Video != nil {
		if imp.Video.W > 0 && imp.Video.H > 0 {
			slot.Width = append(slot.Width, int64(imp.Video.W))
			slot.Height = append(slot.Height, int64(imp.Video.H))
		}
		slot.ExcludedAttribute = appendAttrs(slot.ExcludedAttribute, imp.Video.BAttr)
	}

	// A secure impression cannot take creatives which are not SSL-capable.
	if imp.Secure != nil && *imp.Secure == 1 {
		slot.ExcludedAttribute = append(slot.ExcludedAttribute, validation.CreativeAttrNonSSL)
	}

	if imp.PMP != nil {
		slot.PrivateAuction = imp.PMP.PrivateAuction == 1
		if len(imp.PMP.Deals) > 0 {
			deals := make([]adx.DirectDeal, 0, len(imp.PMP.Deals))
			for _, deal := range imp.PMP.Deals {
				deals = append(deals, adx.DirectDeal{DirectDealID: m.dealID(deal.ID)})
			}
			slot.MatchingAdData = []adx.MatchingAdData{{DirectDeal: deals}}
		}
	}

	if len(imp.Ext) > 0 {
		var ext openrtb_ext.ExtImp
		if err := json.Unmarshal(imp.Ext, &ext); err != nil {
			return slot, fmt.Errorf("request.imp[%d].ext is invalid: %v", index, err)
		}
		if s := ext.Screening; s != nil {
			slot.ExcludedAttribute = append(slot.ExcludedAttribute, s.ExcludedAttributes...)
			slot.ExcludedProductCategory = append(slot.ExcludedProductCategory, s.ExcludedProductCategories...)
			slot.ExcludedSensitiveCategory = append(slot.ExcludedSensitiveCategory, s.ExcludedSensitiveCategories...)
			slot.AllowedVendorType = append(slot.AllowedVendorType, s.AllowedVendorTypes...)
			slot.AllowedRestrictedCategory = append(slot.AllowedRestrictedCategory, s.AllowedRestrictedCategories...)
		}
	}
	return slot, nil
}

// bidRef locates one OpenRTB bid inside its response.
type bidRef struct {
	seat int
	bid  int
}

// adRef rides on Ad.Ext through pruning to identify the OpenRTB bid the ad
// was built from.
type adRef struct {
	Ref int `json:"ref"`
}

func (m *ortbMapping) mapResponse(resp *openrtb.BidResponse) (*adx.BidResponse, []bidRef, error) {
	screenResp := &adx.BidResponse{}
	var refs []bidRef
	for si := range resp.SeatBid {
		for bi := range resp.SeatBid[si].Bid {
			ad, err := m.mapBid(&resp.SeatBid[si].Bid[bi], si, bi, len(refs))
			if err != nil {
				return nil, nil, err
			}
			screenResp.Ad = append(screenResp.Ad, ad)
			refs = append(refs, bidRef{seat: si, bid: bi})
		}
	}
	return screenResp, refs, nil
}

// mapBid builds the single-bid ad screened in place of an OpenRTB bid.
func (m *ortbMapping) mapBid(bid *openrtb.Bid, seatIndex, bidIndex, ordinal int) (adx.Ad, error) {
	ad := adx.Ad{
		HTMLSnippet: bid.AdM,
		Attribute:   appendAttrs(nil, bid.Attr),
		Ext:         json.RawMessage(fmt.Sprintf(`{"ref":%d}`, ordinal)),
	}

	if len(bid.Ext) > 0 {
		var ext openrtb_ext.ExtBid
		if err := json.Unmarshal(bid.Ext, &ext); err != nil {
			return ad, fmt.Errorf("response.seatbid[%d].bid[%d].ext is invalid: %v", seatIndex, bidIndex, err)
		}
		if s := ext.Screening; s != nil {
			ad.Attribute = append(ad.Attribute, s.Attributes...)
			ad.Category = append(ad.Category, s.Categories...)
			ad.VendorType = append(ad.VendorType, s.VendorTypes...)
			ad.RestrictedCategory = append(ad.RestrictedCategory, s.RestrictedCategories...)
			ad.ClickThroughURL = append(ad.ClickThroughURL, s.ClickThroughURLs...)
		}
	}

	// An unknown impid maps to slot id 0, which matches no placement.
	ad.AdSlot = []adx.Bid{{
		ID:           m.slotByImp[bid.ImpID],
		MaxCpmMicros: int64(bid.Price * microsPerCurrencyUnit),
		DealID:       m.dealID(bid.DealID),
	}}
	return ad, nil
}

// dealID translates an OpenRTB deal id into the native numeric space. Numeric
// ids keep their value; anything else gets a negative per-transaction handle,
// consistent between the request's deals and the bids referencing them.
func (m *ortbMapping) dealID(id string) int64 {
	if id == "" {
		return 0
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
		return n
	}
	if handle, ok := m.deals[id]; ok {
		return handle
	}
	m.nextDeal--
	m.deals[id] = m.nextDeal
	return m.nextDeal
}

// pruneToSurvivors rewrites resp.SeatBid keeping only the bids whose ads
// survived screening, and drops seatbids left without bids.
func pruneToSurvivors(resp *openrtb.BidResponse, screened *adx.BidResponse, refs []bidRef) {
	surviving := make(map[bidRef]bool, len(screened.Ad))
	for i := range screened.Ad {
		var ref adRef
		if err := json.Unmarshal(screened.Ad[i].Ext, &ref); err != nil {
			continue
		}
		if ref.Ref >= 0 && ref.Ref < len(refs) {
			surviving[refs[ref.Ref]] = true
		}
	}

	keptSeats := resp.SeatBid[:0]
	for si := range resp.SeatBid {
		seat := resp.SeatBid[si]
		keptBids := make([]openrtb.Bid, 0, len(seat.Bid))
		for bi := range seat.Bid {
			if surviving[bidRef{seat: si, bid: bi}] {
				keptBids = append(keptBids, seat.Bid[bi])
			}
		}
		if len(keptBids) > 0 {
			seat.Bid = keptBids
			keptSeats = append(keptSeats, seat)
		}
	}
	resp.SeatBid = keptSeats
}

func appendAttrs(codes []int32, attrs []openrtb.CreativeAttribute) []int32 {
	for _, attr := range attrs {
		codes = append(codes, int32(attr))
	}
	return codes
}
