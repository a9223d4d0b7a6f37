package openrtb_ext

// ExtImpScreening defines the contract for bidrequest.imp.ext.screening.
//
// It carries the placement constraints which have no native OpenRTB field:
// the exchange's numeric category, vendor and restricted-category codes.
// Constraints with a native home (banner.battr, pmp) stay in their native
// fields and are merged by the exchange during screening.
type ExtImpScreening struct {
	// ExcludedAttributes supplements banner.battr with creative attribute
	// codes past the end of the OpenRTB enumeration.
	ExcludedAttributes []int32 `json:"excluded_attributes,omitempty"`

	ExcludedProductCategories []int32 `json:"excluded_product_categories,omitempty"`

	ExcludedSensitiveCategories []int32 `json:"excluded_sensitive_categories,omitempty"`

	// AllowedVendorTypes whitelists vendor type codes. Empty allows all.
	AllowedVendorTypes []int32 `json:"allowed_vendor_types,omitempty"`

	// AllowedRestrictedCategories whitelists restricted category codes.
	// Empty allows none beyond unrestricted creatives.
	AllowedRestrictedCategories []int32 `json:"allowed_restricted_categories,omitempty"`
}

// ExtImp is the bidrequest.imp.ext shape the screening exchange reads.
type ExtImp struct {
	Screening *ExtImpScreening `json:"screening,omitempty"`
}
