package enrich

import (
	"context"
)

// LeadQuality scores a hit 0-100 from nine boolean signals. Step 10; runs
// after the tier-3 steps so the contradiction count is final.
type LeadQuality struct{}

func (LeadQuality) Enrich(_ context.Context, ec *Ctx) error {
	score := 0

	// Residential address: neither a datacenter range nor a flagged proxy.
	if !ec.Datacenter() && !ec.APIProxy {
		score += 15
	}
	// Stable fingerprint with no edge detector alert.
	if ec.Fingerprint != "||" && !ec.Params.Has("_srv_fpAlert") {
		score += 15
	}
	// Enough mouse movement to look like a hand.
	if moves, ok := ec.Params.Int("mouseMoves"); ok && moves >= 5 {
		score += 10
	}
	if fonts, ok := ec.Params.Int("fontCount"); ok && fonts >= 3 {
		score += 10
	}
	// Canvas present and not churning across hits.
	if ec.Params.Get("canvasFP") != "" {
		if uniq, ok := ec.Params.Int("_srv_fpUniq"); !ok || uniq <= 2 {
			score += 10
		}
	}
	if ec.TimezoneMatch() {
		score += 10
	}
	if ec.ContradictionCount() == 0 {
		score += 10
	}
	// Public, geolocatable address per the edge classifier.
	if ec.Params.Get("_srv_ipType") == "0" {
		score += 10
	}
	if !ec.KnownBot {
		if bs, ok := ec.Params.Int("botScore"); !ok || bs < 50 {
			score += 10
		}
	}

	ec.LeadQuality = score
	ec.Hit.StampInt("_srv_leadQuality", score)
	return nil
}
