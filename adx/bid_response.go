package adx

import "encoding/json"

// BidResponse is a buyer's answer to a BidRequest: candidate ads, each bidding
// on one or more of the request's placements.
type BidResponse struct {
	Ad []Ad `json:"ad,omitempty"`

	// ProcessingTimeMs reports how long the buyer spent building the
	// response. Informational, never screened.
	ProcessingTimeMs int64 `json:"processing_time_ms,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}

// Ad is one candidate creative together with the placement bids proposing it.
// Ads are the unit of pruning: a bid that violates a placement constraint is
// removed from AdSlot, and an ad left with no bids is removed from the
// response.
type Ad struct {
	HTMLSnippet string `json:"html_snippet,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`

	// ClickThroughURL lists the landing pages reachable from the creative.
	ClickThroughURL []string `json:"click_through_url,omitempty"`

	// Attribute lists creative attribute codes declared for the ad.
	Attribute []int32 `json:"attribute,omitempty"`

	// Category lists product category codes declared for the ad. Sensitive
	// category declarations share this list, offset into its upper range.
	Category []int32 `json:"category,omitempty"`

	// VendorType lists the technology vendors involved in serving the ad.
	VendorType []int32 `json:"vendor_type,omitempty"`

	// RestrictedCategory lists restricted categories the ad belongs to,
	// permitted only where the placement whitelists them.
	RestrictedCategory []int32 `json:"restricted_category,omitempty"`

	// AdSlot holds the per-placement bids. The wire name mirrors the
	// request's adslot list each entry references.
	AdSlot []Bid `json:"adslot,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}

// Bid proposes the enclosing Ad for one request placement at a price.
type Bid struct {
	// ID references the AdSlot.ID of the placement being bid on.
	ID int64 `json:"id"`

	MaxCpmMicros int64 `json:"max_cpm_micros,omitempty"`

	// DealID names the direct deal the bid is placed under, zero for open
	// auction bids.
	DealID int64 `json:"deal_id,omitempty"`

	BillingID int64 `json:"billing_id,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}
