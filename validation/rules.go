package validation

import (
	"net/url"
	"strings"

	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/adx"
)

// Creative attribute codes with protocol-defined screening semantics.
const (
	CreativeAttrFlash    int32 = 34
	CreativeAttrNonFlash int32 = 50
	CreativeAttrSSL      int32 = 47
	CreativeAttrNonSSL   int32 = 48
)

// SellerNetworkGDN is the seller network id of display-network inventory.
// Placements it sells accept the metadata display-network vendor set on top
// of their own vendor whitelist.
const SellerNetworkGDN int64 = 1

// Sensitive categories share the ad category code space, carried as the
// sensitive code plus this offset. Codes at or below the offset are plain
// product categories.
const sensitiveCategoryOffset int32 = 9

// A ruleFunc reports whether ad complies with one constraint of slot. Rules
// never mutate their inputs; the first failing rule's reason is recorded for
// the bid.
type ruleFunc func(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool

var adRules = []struct {
	reason Reason
	check  ruleFunc
}{
	{ReasonExcludedAttribute, checkAttributes},
	{ReasonExcludedProductCategory, checkProductCategories},
	{ReasonExcludedSensitiveCategory, checkSensitiveCategories},
	{ReasonVendorNotAllowed, checkVendors},
	{ReasonRestrictedCategoryNotAllowed, checkRestrictedCategories},
	{ReasonNeedsNonFlashAttribute, checkFlash},
	{ReasonNeedsSSL, checkSSL},
}

func checkAttributes(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if code, ok := firstCommonCode(ad.Attribute, slot.ExcludedAttribute); ok {
		if glog.V(2) {
			glog.Infof("Slot %d rejects attribute %d (%s)", slot.ID, code, v.meta.AttributeName(code))
		}
		return false
	}
	return true
}

func checkProductCategories(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if code, ok := firstCommonCode(ad.Category, slot.ExcludedProductCategory); ok {
		if glog.V(2) {
			glog.Infof("Slot %d rejects product category %d (%s)", slot.ID, code, v.meta.ProductCategoryName(code))
		}
		return false
	}
	return true
}

func checkSensitiveCategories(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	for _, code := range ad.Category {
		if code <= sensitiveCategoryOffset {
			continue
		}
		decoded := code - sensitiveCategoryOffset
		if containsCode(slot.ExcludedSensitiveCategory, decoded) {
			if glog.V(2) {
				glog.Infof("Slot %d rejects sensitive category %d (%s)", slot.ID, decoded, v.meta.SensitiveCategoryName(decoded))
			}
			return false
		}
	}
	return true
}

func checkVendors(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if len(slot.AllowedVendorType) == 0 {
		return true
	}
	gdn := req.SellerNetworkID == SellerNetworkGDN
	for _, vendor := range ad.VendorType {
		if containsCode(slot.AllowedVendorType, vendor) {
			continue
		}
		if gdn && v.meta.GDNVendor(vendor) {
			continue
		}
		if glog.V(2) {
			glog.Infof("Slot %d does not allow vendor %d (%s)", slot.ID, vendor, v.meta.VendorName(vendor))
		}
		return false
	}
	return true
}

func checkRestrictedCategories(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if len(slot.AllowedRestrictedCategory) == 0 {
		return true
	}
	for _, category := range ad.RestrictedCategory {
		if !containsCode(slot.AllowedRestrictedCategory, category) {
			if glog.V(2) {
				glog.Infof("Slot %d does not allow restricted category %d", slot.ID, category)
			}
			return false
		}
	}
	return true
}

// checkFlash requires ads on flash-excluding placements to declare themselves
// flash-free. An ad declaring nothing is assumed to be flash.
func checkFlash(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if !containsCode(slot.ExcludedAttribute, CreativeAttrFlash) {
		return true
	}
	return containsCode(ad.Attribute, CreativeAttrNonFlash)
}

// checkSSL requires ads on SSL-only placements to declare the SSL attribute
// and to link exclusively to secure landing pages.
func checkSSL(v *Validator, req *adx.BidRequest, slot *adx.AdSlot, ad *adx.Ad) bool {
	if !containsCode(slot.ExcludedAttribute, CreativeAttrNonSSL) {
		return true
	}
	if !containsCode(ad.Attribute, CreativeAttrSSL) {
		return false
	}
	for _, clickThrough := range ad.ClickThroughURL {
		if !isSecureURL(clickThrough) {
			return false
		}
	}
	return true
}

func isSecureURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Scheme, "https")
}

func containsCode(codes []int32, code int32) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// firstCommonCode returns one element of the intersection of declared and
// excluded, if any. Code lists are tiny, so no set construction.
func firstCommonCode(declared, excluded []int32) (int32, bool) {
	for _, code := range declared {
		if containsCode(excluded, code) {
			return code, true
		}
	}
	return 0, false
}
