package privacy

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"

	"github.com/bidscreen/bidscreen-server/config"
)

// buildConsent constructs a minimal version-1 consent string covering one
// vendor, optionally granting purpose 1.
func buildConsent(allowStorage bool) string {
	data := make([]byte, 22)
	data[0] = 0x04                  // version 1
	data[13], data[14] = 0x01, 0x0D // consent language "EN"
	data[16] = 0x10                 // vendor list version 1
	if allowStorage {
		data[16] |= 0x08 // purpose 1, storage and access of information
	}
	data[21] = 0x14 // max vendor id 1, bitfield, vendor 1 consented
	return base64.RawURLEncoding.EncodeToString(data)
}

func gdprRequest(gdpr string, consent string) *openrtb.BidRequest {
	req := &openrtb.BidRequest{ID: "req-1"}
	if gdpr != "" {
		req.Regs = &openrtb.Regs{Ext: json.RawMessage(`{"gdpr":` + gdpr + `}`)}
	}
	if consent != "" {
		req.User = &openrtb.User{Ext: json.RawMessage(`{"consent":"` + consent + `"}`)}
	}
	return req
}

func TestPersonalInfoAllowed(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config.GDPR
		request *openrtb.BidRequest
		allowed bool
	}{
		{
			name:    "enforcement disabled",
			cfg:     config.GDPR{Enabled: false, DefaultValue: "1"},
			request: gdprRequest("1", ""),
			allowed: true,
		},
		{
			name:    "out of scope by request",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "1"},
			request: gdprRequest("0", ""),
			allowed: true,
		},
		{
			name:    "in scope without consent",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "0"},
			request: gdprRequest("1", ""),
			allowed: false,
		},
		{
			name:    "in scope with storage consent",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "0"},
			request: gdprRequest("1", buildConsent(true)),
			allowed: true,
		},
		{
			name:    "in scope with consent lacking purpose 1",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "0"},
			request: gdprRequest("1", buildConsent(false)),
			allowed: false,
		},
		{
			name:    "in scope with malformed consent",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "0"},
			request: gdprRequest("1", "not-a-consent-string"),
			allowed: false,
		},
		{
			name:    "ambiguous scope uses the default, in scope",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "1"},
			request: gdprRequest("", ""),
			allowed: false,
		},
		{
			name:    "ambiguous scope uses the default, out of scope",
			cfg:     config.GDPR{Enabled: true, DefaultValue: "0"},
			request: gdprRequest("", ""),
			allowed: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			policy := NewPolicy(&tc.cfg)
			assert.Equal(t, tc.allowed, policy.PersonalInfoAllowed(tc.request))
		})
	}
}
