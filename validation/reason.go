package validation

// Reason labels why a bid or ad was removed from a response. Each reason maps
// to exactly one rejection counter in the metrics engine, so values double as
// stable metric labels.
type Reason string

const (
	// ReasonUnmatchedPlacement: the bid references a placement id the
	// request does not contain.
	ReasonUnmatchedPlacement Reason = "unmatched_placement"
	// ReasonDealMismatch: the bid's deal reference is not permitted on the
	// placement, or the placement is private-auction and the bid has none.
	ReasonDealMismatch Reason = "deal_mismatch"
	// ReasonExcludedAttribute: the ad declares a creative attribute the
	// placement excludes.
	ReasonExcludedAttribute Reason = "excluded_attribute"
	// ReasonExcludedProductCategory: the ad declares an excluded product
	// category.
	ReasonExcludedProductCategory Reason = "excluded_product_category"
	// ReasonExcludedSensitiveCategory: the ad declares an excluded sensitive
	// category.
	ReasonExcludedSensitiveCategory Reason = "excluded_sensitive_category"
	// ReasonVendorNotAllowed: the ad declares a vendor type outside the
	// placement's whitelist.
	ReasonVendorNotAllowed Reason = "vendor_not_allowed"
	// ReasonRestrictedCategoryNotAllowed: the ad declares a restricted
	// category outside the placement's whitelist.
	ReasonRestrictedCategoryNotAllowed Reason = "restricted_category_not_allowed"
	// ReasonNeedsNonFlashAttribute: the placement excludes flash and the ad
	// does not declare itself flash-free.
	ReasonNeedsNonFlashAttribute Reason = "needs_nonflash_attribute"
	// ReasonNeedsSSL: the placement requires SSL and the ad either lacks the
	// SSL attribute or links to an insecure landing page.
	ReasonNeedsSSL Reason = "needs_ssl"
	// ReasonNoPlacementsOffered: the ad arrived with no placement bids at
	// all.
	ReasonNoPlacementsOffered Reason = "no_placements_offered"
)

// Reasons returns every rejection reason. Metrics engines use this to
// preallocate one counter per reason.
func Reasons() []Reason {
	return []Reason{
		ReasonUnmatchedPlacement,
		ReasonDealMismatch,
		ReasonExcludedAttribute,
		ReasonExcludedProductCategory,
		ReasonExcludedSensitiveCategory,
		ReasonVendorNotAllowed,
		ReasonRestrictedCategoryNotAllowed,
		ReasonNeedsNonFlashAttribute,
		ReasonNeedsSSL,
		ReasonNoPlacementsOffered,
	}
}
