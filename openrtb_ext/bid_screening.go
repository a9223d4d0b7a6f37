package openrtb_ext

// ExtBidScreening defines the contract for seatbid.bid.ext.screening.
//
// Buyers declare here what their creative is made of, in the exchange's
// numeric code space: OpenRTB's bid.attr covers creative attributes, but has
// no fields for the exchange's category, vendor or restricted-category codes,
// nor for the landing pages the creative clicks through to.
type ExtBidScreening struct {
	// Attributes supplements bid.attr with creative attribute codes past
	// the end of the OpenRTB enumeration.
	Attributes []int32 `json:"attributes,omitempty"`

	// Categories lists declared ad category codes. Sensitive categories are
	// carried offset into the upper code range, as on the native protocol.
	Categories []int32 `json:"categories,omitempty"`

	VendorTypes []int32 `json:"vendor_types,omitempty"`

	RestrictedCategories []int32 `json:"restricted_categories,omitempty"`

	ClickThroughURLs []string `json:"click_through_urls,omitempty"`
}

// ExtBid is the seatbid.bid.ext shape the screening exchange reads.
type ExtBid struct {
	Screening *ExtBidScreening `json:"screening,omitempty"`
}
