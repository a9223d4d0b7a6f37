// Package privacy decides what personal data from a screening request may
// leave the process. Screening itself never needs the device or user objects;
// the only consumer is the analytics record on the openrtb2 path.
package privacy

import (
	"encoding/json"

	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"
	"github.com/prebid/go-gdpr/consentconstants"
	"github.com/prebid/go-gdpr/vendorconsent"

	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/openrtb_ext"
)

// Policy answers consent questions about incoming requests.
type Policy struct {
	cfg *config.GDPR
}

func NewPolicy(cfg *config.GDPR) *Policy {
	return &Policy{cfg: cfg}
}

// PersonalInfoAllowed reports whether the request's device and user objects
// may be logged. When the request is in GDPR scope this requires a consent
// string granting purpose 1, storage and access of information.
func (p *Policy) PersonalInfoAllowed(req *openrtb.BidRequest) bool {
	if !p.cfg.Enabled {
		return true
	}
	if !p.gdprApplies(req) {
		return true
	}
	return consentAllowsStorage(extractConsent(req))
}

// gdprApplies pulls the gdpr flag from regs.ext, falling back to the
// configured default when the request doesn't say.
func (p *Policy) gdprApplies(req *openrtb.BidRequest) bool {
	if req.Regs != nil && len(req.Regs.Ext) > 0 {
		var ext openrtb_ext.ExtRegs
		if err := json.Unmarshal(req.Regs.Ext, &ext); err == nil && ext.GDPR != nil {
			return *ext.GDPR == 1
		}
	}
	return p.cfg.DefaultValue == "1"
}

// extractConsent pulls the consent string from user.ext.
func extractConsent(req *openrtb.BidRequest) string {
	if req.User == nil || len(req.User.Ext) == 0 {
		return ""
	}
	var ext openrtb_ext.ExtUser
	if err := json.Unmarshal(req.User.Ext, &ext); err != nil {
		return ""
	}
	return ext.Consent
}

func consentAllowsStorage(consent string) bool {
	if consent == "" {
		return false
	}
	parsed, err := vendorconsent.ParseString(consent)
	if err != nil {
		if glog.V(2) {
			glog.Infof("Malformed consent string %s: %v", consent, err)
		}
		return false
	}
	return parsed.PurposeAllowed(consentconstants.InfoStorageAccess)
}
