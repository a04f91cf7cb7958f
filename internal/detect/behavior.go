package detect

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	subnetTTL    = 10 * time.Minute
	subnetWindow = 5 * time.Minute
	rapidTTL     = 2 * time.Minute
	rapidWindow  = 15 * time.Second
)

// BehaviorResult carries the subnet-velocity and rapid-fire signals for one
// hit. LastGapMs is -1 on the first hit from an address.
type BehaviorResult struct {
	SubnetKey           string
	SubnetDistinctIPs   int
	SubnetHits          int
	SubnetVelocityAlert bool
	HitsInWindow        int
	LastGapMs           int64
	RapidFireAlert      bool
	SubSecondDuplicate  bool
}

type subnetHistory struct {
	mu         sync.Mutex
	addresses  map[string]struct{}
	timestamps []time.Time
}

type rapidHistory struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// BehaviorTracker tracks per-/24-subnet and per-address timing histories.
type BehaviorTracker struct {
	cache *gocache.Cache
	now   func() time.Time
}

func NewBehaviorTracker(cache *gocache.Cache) *BehaviorTracker {
	return &BehaviorTracker{cache: cache, now: time.Now}
}

// Subnet24 returns the /24 prefix of an IPv4 address: the text up to the
// final dot. IPv6 has no subnet key here and returns ok=false.
func Subnet24(addr string) (string, bool) {
	if strings.Contains(addr, ":") {
		return "", false
	}
	i := strings.LastIndexByte(addr, '.')
	if i <= 0 {
		return "", false
	}
	return addr[:i], true
}

// RecordAndCheck registers one hit from addr and returns both detector
// signals. The subnet detector is skipped for IPv6; rapid-fire always runs.
func (t *BehaviorTracker) RecordAndCheck(addr string) BehaviorResult {
	now := t.now()
	res := BehaviorResult{LastGapMs: -1}

	if subnet, ok := Subnet24(addr); ok {
		res.SubnetKey = subnet
		t.recordSubnet(subnet, addr, now, &res)
	}
	t.recordRapid(addr, now, &res)
	return res
}

func (t *BehaviorTracker) recordSubnet(subnet, addr string, now time.Time, res *BehaviorResult) {
	key := "subnet:" + subnet

	h := getOrCreate(t.cache, key, subnetTTL, func() *subnetHistory {
		return &subnetHistory{addresses: make(map[string]struct{})}
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-subnetWindow)
	i := 0
	for i < len(h.timestamps) && h.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		h.timestamps = h.timestamps[i:]
	}
	h.timestamps = append(h.timestamps, now)
	h.addresses[addr] = struct{}{}

	res.SubnetDistinctIPs = len(h.addresses)
	res.SubnetHits = len(h.timestamps)
	res.SubnetVelocityAlert = len(h.addresses) >= 3
}

func (t *BehaviorTracker) recordRapid(addr string, now time.Time, res *BehaviorResult) {
	key := "rapid:" + addr

	h := getOrCreate(t.cache, key, rapidTTL, func() *rapidHistory {
		return &rapidHistory{}
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-rapidWindow)
	i := 0
	for i < len(h.timestamps) && h.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		h.timestamps = h.timestamps[i:]
	}

	if n := len(h.timestamps); n > 0 {
		res.LastGapMs = now.Sub(h.timestamps[n-1]).Milliseconds()
	}
	h.timestamps = append(h.timestamps, now)

	res.HitsInWindow = len(h.timestamps)
	res.RapidFireAlert = len(h.timestamps) >= 3
	res.SubSecondDuplicate = res.LastGapMs >= 0 && res.LastGapMs < 1000
}
