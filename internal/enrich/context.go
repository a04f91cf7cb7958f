// Package enrich holds the forge's enrichment steps: tier 1 library/API
// calls, tier 2 cross-request correlation, tier 3 asymmetric detection.
// Every step appends _srv_* parameters to the hit's query string and records
// its typed result in the per-hit Ctx. A step failure is caught at the
// pipeline boundary and the hit continues to the next step.
package enrich

import (
	"github.com/smartpixl/smartpixl/internal/hit"
)

// Ctx is the ephemeral per-hit state built up as a hit moves through the
// tiers. It is owned by the worker goroutine processing the hit and never
// persisted; only the stamps on the hit survive.
type Ctx struct {
	Hit    *hit.Hit
	Params hit.Params

	// Fingerprint is the composite canvas|webgl|audio identity key.
	Fingerprint string

	// Tier 1.
	KnownBot       bool
	BotName        string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	DeviceType     string
	DeviceModel    string
	DeviceBrand    string
	RDNS           string
	RDNSCloud      bool
	MMCountry      string
	MMRegion       string
	MMCity         string
	MMLat          float64
	MMLon          float64
	MMASN          string
	MMASNOrg       string
	APICountry     string
	APIISP         string
	APIProxy       bool
	APIMobile      bool
	APIReverse     string
	APIASN         string
	WhoisASN       string
	WhoisOrg       string

	// Tier 2.
	SessionID          string
	SessionHitNum      int
	SessionDurationSec int
	SessionPageCount   int
	CrossCompanies     int
	CrossCustomerAlert bool
	GPUTier            string
	Affluence          string
	LeadQuality        int

	// Tier 3.
	Contradictions   []string
	CulturalScore    int
	CulturalFlags    []string
	DeviceAgeYears   int
	DeviceAgeKnown   bool
	DeviceAgeAnomaly bool
	ReplayDetected   bool
	DeadInternetIdx  int
}

// NewCtx parses the hit's query string once (edge stamps included) and
// derives the composite fingerprint.
func NewCtx(h *hit.Hit) *Ctx {
	p := hit.ParseParams(h.QueryString)
	return &Ctx{
		Hit:    h,
		Params: p,
		Fingerprint: hit.CompositeFingerprint(
			p.Get("canvasFP"), p.Get("webglFP"), p.Get("audioFP")),
	}
}

// Datacenter reports whether the edge's datacenter matcher or the reverse
// DNS cloud catalog identified the address as hosted.
func (c *Ctx) Datacenter() bool {
	return c.RDNSCloud || c.Params.Get("_srv_dc") != ""
}

// TimezoneMatch reports whether the edge saw the client and geo timezones
// agree. True only when the edge had a geo record and no mismatch stamp.
func (c *Ctx) TimezoneMatch() bool {
	return c.Params.Get("_srv_geoTz") != "" && !c.Params.Has("_srv_geoTzMismatch")
}

// ContradictionCount is the number of tier-3 contradiction rules that fired.
func (c *Ctx) ContradictionCount() int {
	return len(c.Contradictions)
}
