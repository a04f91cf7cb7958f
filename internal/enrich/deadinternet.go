package enrich

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DeadInternet keeps a per-company, per-hour running ratio of bot-weighted
// traffic: 0 means every hit this hour looked human, 100 means every hit
// carried the full set of bot signals. Each hit is stamped with the
// bucket's score as of that hit. Step 15, the last of tier 3.
type DeadInternet struct {
	buckets *xsync.MapOf[string, *deadBucket]
	now     func() time.Time
}

type deadBucket struct {
	mu       sync.Mutex
	hour     int64
	hits     int
	weighted float64
	fps      map[string]struct{}
}

func NewDeadInternet() *DeadInternet {
	return &DeadInternet{
		buckets: xsync.NewMapOf[string, *deadBucket](),
		now:     time.Now,
	}
}

func (d *DeadInternet) Enrich(_ context.Context, ec *Ctx) error {
	if ec.Hit.CompanyID == "" {
		return nil
	}
	b, _ := d.buckets.LoadOrCompute(ec.Hit.CompanyID, func() *deadBucket {
		return &deadBucket{fps: make(map[string]struct{})}
	})

	hour := d.now().Unix() / 3600

	b.mu.Lock()
	if b.hour != hour {
		b.hour = hour
		b.hits = 0
		b.weighted = 0
		b.fps = make(map[string]struct{})
	}
	b.hits++
	if ec.Fingerprint != "||" {
		b.fps[ec.Fingerprint] = struct{}{}
	}

	w := 0.0
	if bs, ok := ec.Params.Int("botScore"); ok && bs >= 50 {
		w += 0.30
	}
	if zeroMouse(ec) {
		w += 0.20
	}
	if ec.Datacenter() {
		w += 0.20
	}
	if ec.ContradictionCount() > 0 {
		w += 0.15
	}
	// Diversity collapses when many hits share few fingerprints.
	if b.hits >= 10 && float64(len(b.fps)) < 0.2*float64(b.hits) {
		w += 0.15
	}
	b.weighted += w

	idx := int(math.Round(b.weighted / float64(b.hits) * 100))
	b.mu.Unlock()

	if idx > 100 {
		idx = 100
	}
	ec.DeadInternetIdx = idx
	ec.Hit.StampInt("_srv_deadInternetIdx", idx)
	return nil
}
