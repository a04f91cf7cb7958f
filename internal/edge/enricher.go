// Package edge is the hot request path: capture, in-memory detectors, stamp,
// enqueue, respond. Everything here runs on the request goroutine inside a
// microsecond-order budget, so no step may touch the network or disk.
package edge

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/datacenter"
	"github.com/smartpixl/smartpixl/internal/detect"
	"github.com/smartpixl/smartpixl/internal/geocache"
	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/ipclass"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// Enricher runs the five edge detectors in fixed order and appends their
// _srv_* stamps to the hit's query string.
type Enricher struct {
	fingerprints *detect.FingerprintTracker
	behavior     *detect.BehaviorTracker
	datacenter   *datacenter.Matcher
	geo          *geocache.Cache
	logger       *zap.Logger
}

func NewEnricher(fp *detect.FingerprintTracker, bt *detect.BehaviorTracker, dc *datacenter.Matcher, geo *geocache.Cache, logger *zap.Logger) *Enricher {
	return &Enricher{
		fingerprints: fp,
		behavior:     bt,
		datacenter:   dc,
		geo:          geo,
		logger:       logger,
	}
}

// Enrich stamps h in place. The order below is the contract; later stamps
// may depend on earlier ones (the timezone mismatch reads the geo stamp).
func (e *Enricher) Enrich(h *hit.Hit) {
	params := hit.ParseParams(h.QueryString)

	// 1. Hit type: any JavaScript-collected parameter marks a modern hit.
	if params.Has("sw") || params.Has("canvasFP") {
		h.Stamp("_srv_hitType", "modern")
		metrics.HitsTotal.WithLabelValues("modern").Inc()
	} else {
		h.Stamp("_srv_hitType", "legacy")
		metrics.HitsTotal.WithLabelValues("legacy").Inc()
	}

	// 2. Legacy referrer fallback: script-less pixels pass the referrer as a
	// query parameter.
	if h.Referrer == "" {
		if ref := params.Get("ref"); ref != "" {
			h.Referrer = hit.Truncate(ref)
		}
	}

	// 3. Fingerprint stability.
	fp := e.fingerprints.RecordAndCheck(h.Address,
		params.Get("canvasFP"), params.Get("webglFP"), params.Get("audioFP"))
	h.StampInt("_srv_fpObs", fp.ObservationCount)
	h.StampInt("_srv_fpUniq", fp.UniqueCount)
	h.StampInt("_srv_fpRate5m", fp.Recent5mCount)
	if fp.SuspiciousVariation || fp.HighVolume || fp.ExtremeVolume || fp.HighRate {
		h.StampFlag("_srv_fpAlert")
		metrics.DetectorAlertsTotal.WithLabelValues("fingerprint").Inc()
	}

	// 4. Subnet velocity and rapid-fire.
	bh := e.behavior.RecordAndCheck(h.Address)
	if bh.SubnetKey != "" {
		h.StampInt("_srv_subnetIps", bh.SubnetDistinctIPs)
		h.StampInt("_srv_subnetHits", bh.SubnetHits)
	}
	h.StampInt("_srv_hitsIn15s", bh.HitsInWindow)
	if bh.LastGapMs >= 0 {
		h.Stamp("_srv_lastGapMs", strconv.FormatInt(bh.LastGapMs, 10))
	}
	if bh.SubnetVelocityAlert {
		h.StampFlag("_srv_subnetAlert")
		metrics.DetectorAlertsTotal.WithLabelValues("subnet").Inc()
	}
	if bh.RapidFireAlert {
		h.StampFlag("_srv_rapidFire")
		metrics.DetectorAlertsTotal.WithLabelValues("rapid_fire").Inc()
	}
	if bh.SubSecondDuplicate {
		h.StampFlag("_srv_subSecDupe")
	}

	// 5. Datacenter ranges.
	if matched, provider := e.datacenter.Check(h.Address); matched {
		h.Stamp("_srv_dc", provider)
		metrics.DetectorAlertsTotal.WithLabelValues("datacenter").Inc()
	}

	// 6. Address classification; non-geolocatable types skip geo entirely.
	cls := ipclass.Classify(h.Address)
	h.StampInt("_srv_ipType", int(cls.Type))
	if !cls.Geolocatable {
		return
	}

	// 7. Geo cache, non-blocking. A miss stamps nothing; the refill makes
	// the next hit from this address see the record.
	rec := e.geo.Lookup(h.Address)
	if rec == nil {
		return
	}
	h.Stamp("_srv_geoCC", rec.CountryCode)
	h.Stamp("_srv_geoReg", rec.Region)
	h.Stamp("_srv_geoCity", rec.City)
	h.Stamp("_srv_geoTz", rec.Timezone)
	h.Stamp("_srv_geoISP", rec.ISP)
	if rec.Proxy {
		h.StampFlag("_srv_geoProxy")
	}
	if rec.Mobile {
		h.StampFlag("_srv_geoMobile")
	}

	// 8. Client-reported timezone vs. geo timezone.
	clientTz := params.Get("tz")
	if clientTz != "" && rec.Timezone != "" && clientTz != rec.Timezone {
		h.StampFlag("_srv_geoTzMismatch")
	}
}
