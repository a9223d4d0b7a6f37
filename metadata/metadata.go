// Package metadata serves the exchange's code dictionaries: vendor types,
// product and sensitive categories, creative attributes, agencies, and the
// seller directory. The screening engine resolves codes against a provider
// snapshot; snapshots swap atomically, so lookups are safe for any number of
// concurrent readers.
package metadata

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/blang/semver"
	"github.com/golang/glog"
)

// Provider holds the current dictionary snapshot and refreshes it from a
// metadata endpoint when one is configured.
type Provider struct {
	transport         Transport
	endpoint          string
	staleAfter        time.Duration
	minSellersVersion semver.Version
	gateSellers       bool

	snapshot    atomic.Value // *snapshot
	lastUpdated atomic.Value // time.Time
}

type snapshot struct {
	vendors             Dictionary
	gdnVendors          map[int32]bool
	productCategories   Dictionary
	sensitiveCategories Dictionary
	attributes          Dictionary
	agencies            Dictionary
	sellers             *Sellers
}

var blankSnapshot = &snapshot{}

// NewProvider builds a Provider refreshing from endpoint via transport.
// endpoint may be empty for deployments serving only locally loaded
// dictionaries. Snapshots older than staleAfter are discarded rather than
// served; zero disables the check. minSellersVersion rejects seller
// directories older than the given version ("" accepts any).
func NewProvider(transport Transport, endpoint string, staleAfter time.Duration, minSellersVersion string) *Provider {
	p := &Provider{
		transport:  transport,
		endpoint:   endpoint,
		staleAfter: staleAfter,
	}
	if minSellersVersion != "" {
		version, err := semver.ParseTolerant(minSellersVersion)
		if err != nil {
			glog.Fatalf("Invalid minimum sellers version %q: %v", minSellersVersion, err)
		}
		p.minSellersVersion = version
		p.gateSellers = true
	}
	return p
}

// Update fetches the metadata endpoint and installs the result. On failure
// the previous snapshot keeps serving unless it has gone stale, in which case
// it is cleared and screening falls back to the strictest interpretation.
func (p *Provider) Update() error {
	if p.endpoint == "" {
		return nil
	}

	bundle, err := p.fetch()
	if err == nil {
		p.Install(bundle)
	} else {
		if p.checkStale() {
			p.Clear()
			glog.Errorf("Error updating metadata dictionaries, clearing stale snapshot: %v", err)
		} else {
			glog.Errorf("Error updating metadata dictionaries: %v", err)
		}
	}
	return err
}

// Run makes Provider a task.Runner so a ticker can drive periodic updates.
func (p *Provider) Run() error {
	return p.Update()
}

func (p *Provider) fetch() (*Bundle, error) {
	body, err := p.transport.Fetch(p.endpoint)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{}
	if err := json.Unmarshal(body, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Install replaces the current snapshot with the bundle's contents. Seller
// directories failing the version gate are dropped with a warning; the code
// dictionaries install regardless.
func (p *Provider) Install(bundle *Bundle) {
	next := &snapshot{
		vendors:             bundle.Vendors,
		productCategories:   bundle.ProductCategories,
		sensitiveCategories: bundle.SensitiveCategories,
		attributes:          bundle.CreativeAttributes,
		agencies:            bundle.Agencies,
		sellers:             p.gatedSellers(bundle.Sellers),
	}
	next.gdnVendors = make(map[int32]bool, len(bundle.GDNVendors))
	for _, vendor := range bundle.GDNVendors {
		next.gdnVendors[vendor] = true
	}

	p.snapshot.Store(next)
	p.lastUpdated.Store(time.Now())

	if glog.V(2) {
		glog.Infof("Installed metadata snapshot: %d vendors, %d display-network vendors, %d product categories, %d sensitive categories, %d attributes",
			len(next.vendors), len(next.gdnVendors), len(next.productCategories), len(next.sensitiveCategories), len(next.attributes))
	}
}

func (p *Provider) gatedSellers(sellers *Sellers) *Sellers {
	if sellers == nil || !p.gateSellers {
		return sellers
	}
	version, err := semver.ParseTolerant(sellers.Version)
	if err != nil {
		glog.Warningf("Dropping seller directory with unparseable version %q: %v", sellers.Version, err)
		return nil
	}
	if version.LT(p.minSellersVersion) {
		glog.Warningf("Dropping seller directory version %s, older than supported %s", sellers.Version, p.minSellersVersion)
		return nil
	}
	return sellers
}

// Clear drops the snapshot. Lookups then resolve nothing, which screening
// treats as the strictest case.
func (p *Provider) Clear() {
	p.snapshot.Store(blankSnapshot)
	p.lastUpdated.Store(time.Time{})
}

// checkStale reports whether the snapshot is older than the configured
// threshold.
func (p *Provider) checkStale() bool {
	if p.staleAfter <= 0 {
		return false
	}
	lastUpdated := p.LastUpdated()
	if lastUpdated.IsZero() {
		return false
	}
	return time.Now().After(lastUpdated.Add(p.staleAfter))
}

// LastUpdated returns when a snapshot was last installed.
func (p *Provider) LastUpdated() time.Time {
	if t, ok := p.lastUpdated.Load().(time.Time); ok {
		return t
	}
	return time.Time{}
}

func (p *Provider) snap() *snapshot {
	if s, ok := p.snapshot.Load().(*snapshot); ok && s != nil {
		return s
	}
	return blankSnapshot
}

// GDNVendor reports whether the vendor is implicitly accepted on
// display-network inventory.
func (p *Provider) GDNVendor(vendorType int32) bool {
	return p.snap().gdnVendors[vendorType]
}

// VendorName resolves a vendor type code, empty when unknown.
func (p *Provider) VendorName(vendorType int32) string {
	return p.snap().vendors[vendorType]
}

// AttributeName resolves a creative attribute code, empty when unknown.
func (p *Provider) AttributeName(code int32) string {
	return p.snap().attributes[code]
}

// ProductCategoryName resolves a product category code, empty when unknown.
func (p *Provider) ProductCategoryName(code int32) string {
	return p.snap().productCategories[code]
}

// SensitiveCategoryName resolves a sensitive category code, empty when
// unknown.
func (p *Provider) SensitiveCategoryName(code int32) string {
	return p.snap().sensitiveCategories[code]
}

// AgencyName resolves an agency code, empty when unknown.
func (p *Provider) AgencyName(code int32) string {
	return p.snap().agencies[code]
}

// Sellers returns the current seller directory, nil when none is loaded.
func (p *Provider) Sellers() *Sellers {
	return p.snap().sellers
}

// Info is a point-in-time summary of the provider, served by the admin
// endpoint.
type Info struct {
	LastUpdated         time.Time `json:"last_updated"`
	Stale               bool      `json:"stale"`
	Vendors             int       `json:"vendors"`
	GDNVendors          int       `json:"gdn_vendors"`
	ProductCategories   int       `json:"product_categories"`
	SensitiveCategories int       `json:"sensitive_categories"`
	CreativeAttributes  int       `json:"creative_attributes"`
	Agencies            int       `json:"agencies"`
	Sellers             int       `json:"sellers"`
	SellersVersion      string    `json:"sellers_version,omitempty"`
}

// GetInfo summarizes the current snapshot.
func (p *Provider) GetInfo() Info {
	s := p.snap()
	info := Info{
		LastUpdated:         p.LastUpdated(),
		Stale:               p.checkStale(),
		Vendors:             len(s.vendors),
		GDNVendors:          len(s.gdnVendors),
		ProductCategories:   len(s.productCategories),
		SensitiveCategories: len(s.sensitiveCategories),
		CreativeAttributes:  len(s.attributes),
		Agencies:            len(s.agencies),
	}
	if s.sellers != nil {
		info.Sellers = len(s.sellers.Sellers)
		info.SellersVersion = s.sellers.Version
	}
	return info
}
