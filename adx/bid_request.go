package adx

import "encoding/json"

// BidRequest describes one auction: the placements offered for bidding and the
// constraints each placement imposes on candidate ads.
type BidRequest struct {
	// ID is the unique request identifier assigned by the exchange.
	ID string `json:"id"`

	// SellerNetworkID identifies the selling network the inventory belongs
	// to. Display-network inventory (SellerNetworkGDN in package validation)
	// gets special vendor handling.
	SellerNetworkID int64 `json:"seller_network_id,omitempty"`

	AdSlot []AdSlot `json:"adslot,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}

// AdSlot is one placement being auctioned, along with the policy constraints
// any bid for it must satisfy.
type AdSlot struct {
	// ID is referenced by Bid.ID in responses. Required, non-zero.
	ID int64 `json:"id"`

	// Accepted creative sizes, parallel lists.
	Width  []int64 `json:"width,omitempty"`
	Height []int64 `json:"height,omitempty"`

	// ExcludedAttribute lists creative attribute codes that must not appear
	// on an ad returned for this placement.
	ExcludedAttribute []int32 `json:"excluded_attribute,omitempty"`

	// ExcludedProductCategory lists product category codes that must not
	// appear on an ad.
	ExcludedProductCategory []int32 `json:"excluded_product_category,omitempty"`

	// ExcludedSensitiveCategory lists sensitive category codes that must not
	// appear on an ad. Ads carry sensitive categories offset into the upper
	// range of the shared category code space.
	ExcludedSensitiveCategory []int32 `json:"excluded_sensitive_category,omitempty"`

	// AllowedVendorType whitelists the vendor types an ad may declare.
	// Empty means any vendor is accepted.
	AllowedVendorType []int32 `json:"allowed_vendor_type,omitempty"`

	// AllowedRestrictedCategory whitelists the restricted categories an ad
	// may declare. Empty means no restriction.
	AllowedRestrictedCategory []int32 `json:"allowed_restricted_category,omitempty"`

	// MatchingAdData carries per-buyer bidding data, including the direct
	// deals offered on this placement.
	MatchingAdData []MatchingAdData `json:"matching_ad_data,omitempty"`

	// PrivateAuction restricts the placement to bids referencing one of its
	// direct deals.
	PrivateAuction bool `json:"private_auction,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}

// MatchingAdData holds the billing accounts and direct deals under which a
// buyer may bid on a placement.
type MatchingAdData struct {
	BillingID  []int64      `json:"billing_id,omitempty"`
	DirectDeal []DirectDeal `json:"direct_deal,omitempty"`
}

// DirectDeal is a pre-negotiated arrangement permitting bids on a placement
// at an agreed price.
type DirectDeal struct {
	DirectDealID   int64 `json:"direct_deal_id,omitempty"`
	FixedCpmMicros int64 `json:"fixed_cpm_micros,omitempty"`
}
