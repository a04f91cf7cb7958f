// Package detect holds the edge's in-memory stateful detectors. All three
// (fingerprint stability, subnet velocity, rapid-fire) share one TTL cache
// backend; their key prefixes ("fp:", "subnet:", "rapid:") are disjoint.
package detect

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/smartpixl/smartpixl/internal/hit"
)

const (
	fingerprintTTL  = 24 * time.Hour
	fpRateWindow    = 5 * time.Minute
	fpMaxTimestamps = 1000
)

// FingerprintResult carries the stability signals for one observation.
type FingerprintResult struct {
	Stable              bool
	SuspiciousVariation bool
	HighVolume          bool
	ExtremeVolume       bool
	HighRate            bool
	UniqueCount         int
	ObservationCount    int
	Recent5mCount       int
}

// fingerprintHistory is the per-address entry. The cache owns the entry; the
// entry's own mutex serializes updates so two hits from the same address
// observe a consistent ordered view.
type fingerprintHistory struct {
	mu           sync.Mutex
	seen         map[string]struct{}
	observations int
	timestamps   []time.Time
}

// FingerprintTracker tracks composite fingerprint churn per address over a
// 24-hour sliding window.
type FingerprintTracker struct {
	cache *gocache.Cache
	now   func() time.Time
}

func NewFingerprintTracker(cache *gocache.Cache) *FingerprintTracker {
	return &FingerprintTracker{cache: cache, now: time.Now}
}

// getOrCreate fetches the history entry for key, creating it when absent.
// Concurrent first hits race on the create; the Add loser re-reads the
// winner's entry so no observation lands in a discarded history. A hit on an
// existing entry re-sets it to slide the TTL.
func getOrCreate[T any](c *gocache.Cache, key string, ttl time.Duration, fresh func() T) T {
	for {
		if v, ok := c.Get(key); ok {
			c.Set(key, v, ttl)
			return v.(T)
		}
		h := fresh()
		if c.Add(key, h, ttl) == nil {
			return h
		}
	}
}

// RecordAndCheck registers one observation of the (canvas, webgl, audio)
// composite for addr and returns the stability signals.
func (t *FingerprintTracker) RecordAndCheck(addr, canvasHash, webglHash, audioHash string) FingerprintResult {
	composite := hit.CompositeFingerprint(canvasHash, webglHash, audioHash)
	key := "fp:" + addr

	h := getOrCreate(t.cache, key, fingerprintTTL, func() *fingerprintHistory {
		return &fingerprintHistory{seen: make(map[string]struct{})}
	})

	now := t.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	_, known := h.seen[composite]
	stable := h.observations == 0 || known

	h.seen[composite] = struct{}{}
	h.observations++

	// Prune the rate window oldest-first; the list is in insertion order.
	cutoff := now.Add(-fpRateWindow)
	i := 0
	for i < len(h.timestamps) && h.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		h.timestamps = h.timestamps[i:]
	}
	if len(h.timestamps) < fpMaxTimestamps {
		h.timestamps = append(h.timestamps, now)
	}

	unique := len(h.seen)
	recent := len(h.timestamps)

	return FingerprintResult{
		Stable:              stable,
		SuspiciousVariation: unique > 2 && h.observations > 3,
		HighVolume:          h.observations > 50,
		ExtremeVolume:       h.observations > 200,
		HighRate:            recent > 20,
		UniqueCount:         unique,
		ObservationCount:    h.observations,
		Recent5mCount:       recent,
	}
}
