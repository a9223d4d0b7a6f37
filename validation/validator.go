// Package validation screens candidate bid responses against the policy
// constraints carried on a bid request. Bids violating a placement constraint
// are pruned from their ad, ads left without bids are pruned from the
// response, and every removal increments a per-reason counter. Screening
// never fails a transaction: whatever survives is the result.
package validation

import (
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/errortypes"
)

// Recorder counts pruned bids by reason. Implementations must be safe for
// concurrent use; the metrics engine satisfies this.
type Recorder interface {
	RecordRejection(reason Reason)
}

// Metadata resolves exchange dictionary codes. Implementations must be safe
// for concurrent readers; the engine only queries it.
type Metadata interface {
	// GDNVendor reports whether a vendor type is implicitly accepted on
	// display-network inventory.
	GDNVendor(vendorType int32) bool
	VendorName(vendorType int32) string
	AttributeName(code int32) string
	ProductCategoryName(code int32) string
	SensitiveCategoryName(code int32) string
}

// Validator prunes bid responses. It holds no per-call state, so one
// Validator serves concurrent calls as long as each call owns its response.
type Validator struct {
	meta     Metadata
	recorder Recorder
}

// New builds a Validator around the given metadata and rejection recorder.
// Nil arguments are replaced with inert implementations.
func New(meta Metadata, recorder Recorder) *Validator {
	if meta == nil {
		meta = emptyMetadata{}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Validator{
		meta:     meta,
		recorder: recorder,
	}
}

// Validate removes from resp every bid violating a constraint of the
// placement it references, and every ad left without bids, recording one
// rejection per removal. Policy violations never produce an error; the
// returned error reports only input too malformed to attempt matching.
func (v *Validator) Validate(req *adx.BidRequest, resp *adx.BidResponse) error {
	if req == nil {
		return &errortypes.BadInput{Message: "request is required"}
	}
	if resp == nil {
		return &errortypes.BadInput{Message: "response is required"}
	}

	slots := make(map[int64]*adx.AdSlot, len(req.AdSlot))
	for i := range req.AdSlot {
		slots[req.AdSlot[i].ID] = &req.AdSlot[i]
	}

	keptAds := make([]adx.Ad, 0, len(resp.Ad))
	for i := range resp.Ad {
		ad := &resp.Ad[i]
		if len(ad.AdSlot) == 0 {
			v.reject(ReasonNoPlacementsOffered)
			continue
		}

		keptBids := make([]adx.Bid, 0, len(ad.AdSlot))
		for _, bid := range ad.AdSlot {
			slot, ok := slots[bid.ID]
			if !ok {
				if glog.V(2) {
					glog.Infof("Bid references unknown placement %d", bid.ID)
				}
				v.reject(ReasonUnmatchedPlacement)
				continue
			}
			if !dealPermitted(slot, &bid) {
				if glog.V(2) {
					glog.Infof("Slot %d does not permit deal %d", slot.ID, bid.DealID)
				}
				v.reject(ReasonDealMismatch)
				continue
			}
			if reason, ok := v.runRules(req, slot, ad); !ok {
				v.reject(reason)
				continue
			}
			keptBids = append(keptBids, bid)
		}

		ad.AdSlot = keptBids
		if len(keptBids) > 0 {
			keptAds = append(keptAds, *ad)
		}
	}
	resp.Ad = keptAds
	return nil
}

// runRules evaluates the rule set in order, short-circuiting on the first
// failure. Order does not change the accept/reject outcome, only which reason
// is counted when several rules would fail.
func (v *Validator) runRules(req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) (Reason, bool) {
	for _, rule := range adRules {
		if !rule.check(v, req, slot, ad) {
			return rule.reason, false
		}
	}
	return "", true
}

func (v *Validator) reject(reason Reason) {
	v.recorder.RecordRejection(reason)
}

// dealPermitted checks the bid's deal reference against the placement's
// direct deals. Undealt bids pass unless the placement is private-auction.
func dealPermitted(slot *adx.AdSlot, bid *adx.Bid) bool {
	if bid.DealID == 0 {
		return !slot.PrivateAuction
	}
	for _, mad := range slot.MatchingAdData {
		for _, deal := range mad.DirectDeal {
			if deal.DirectDealID == bid.DealID {
				return true
			}
		}
	}
	return false
}

// NopRecorder drops all rejection counts. Useful for tests and for callers
// without a metrics backend.
type NopRecorder struct{}

// RecordRejection does nothing.
func (NopRecorder) RecordRejection(reason Reason) {}

// emptyMetadata resolves nothing: no display-network vendors and no names.
type emptyMetadata struct{}

func (emptyMetadata) GDNVendor(vendorType int32) bool         { return false }
func (emptyMetadata) VendorName(vendorType int32) string      { return "" }
func (emptyMetadata) AttributeName(code int32) string         { return "" }
func (emptyMetadata) ProductCategoryName(code int32) string   { return "" }
func (emptyMetadata) SensitiveCategoryName(code int32) string { return "" }
