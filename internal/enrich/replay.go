package enrich

import (
	"context"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const replayCacheSize = 65536

// Replay catches replayed mouse trajectories. The path is quantized to a
// 10-pixel grid and 100 ms time buckets before hashing, so jitter added by
// a replayer does not change the signature; two different fingerprints
// producing the same quantized path means the movement was recorded once
// and played back. Step 14 of tier 3.
//
// Only the second hit is flagged. The first submitter keeps its cache entry
// and stays the match target for later collisions.
type Replay struct {
	seen *lru.Cache[uint64, string]
}

func NewReplay() (*Replay, error) {
	seen, err := lru.New[uint64, string](replayCacheSize)
	if err != nil {
		return nil, err
	}
	return &Replay{seen: seen}, nil
}

func (r *Replay) Enrich(_ context.Context, ec *Ctx) error {
	path := ec.Params.Get("mousePath")
	if path == "" || ec.Fingerprint == "||" {
		return nil
	}
	quantized := QuantizePath(path)
	if quantized == "" {
		return nil
	}
	sum := xxhash.Sum64String(quantized)

	if prev, ok := r.seen.Get(sum); ok {
		if prev != ec.Fingerprint {
			ec.ReplayDetected = true
			ec.Hit.StampFlag("_srv_replayDetected")
			ec.Hit.Stamp("_srv_replayMatchFingerprint", prev)
		}
		return nil
	}
	r.seen.Add(sum, ec.Fingerprint)
	return nil
}

// QuantizePath normalizes a "t:x,y;t:x,y;..." trajectory. Points that
// collapse onto the same cell and bucket as their predecessor are dropped.
func QuantizePath(path string) string {
	var b strings.Builder
	var lastT, lastX, lastY int64 = -1, -1, -1
	for _, point := range strings.Split(path, ";") {
		colon := strings.IndexByte(point, ':')
		comma := strings.IndexByte(point, ',')
		if colon <= 0 || comma <= colon {
			continue
		}
		t, err1 := strconv.ParseInt(point[:colon], 10, 64)
		x, err2 := strconv.ParseInt(point[colon+1:comma], 10, 64)
		y, err3 := strconv.ParseInt(point[comma+1:], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		t, x, y = t/100, x/10, y/10
		if t == lastT && x == lastX && y == lastY {
			continue
		}
		lastT, lastX, lastY = t, x, y
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatInt(t, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(x, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(y, 10))
	}
	return b.String()
}
