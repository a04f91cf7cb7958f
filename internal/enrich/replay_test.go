package enrich

import (
	"context"
	"net/url"
	"testing"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func TestQuantizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "points collapse onto grid cells",
			path: "12:123,456;98:127,451;230:240,300",
			want: "0:12,45;2:24,30",
		},
		{
			name: "malformed points are skipped",
			path: "garbage;:5,6;7,8;100:50,60",
			want: "1:5,6",
		},
		{
			name: "all malformed",
			path: "x;y;z",
			want: "",
		},
		{
			name: "single point",
			path: "0:999,10",
			want: "0:99,1",
		},
	}
	for _, tt := range tests {
		if got := QuantizePath(tt.path); got != tt.want {
			t.Errorf("%s: QuantizePath(%q) = %q, want %q", tt.name, tt.path, got, tt.want)
		}
	}
}

func TestQuantizePath_JitterInvariant(t *testing.T) {
	// A replayer adding a few pixels and milliseconds of noise still lands in
	// the same cells.
	original := "10:120,240;150:300,410;320:500,620"
	jittered := "14:123,244;158:304,412;327:503,628"
	if QuantizePath(original) != QuantizePath(jittered) {
		t.Errorf("jittered path quantizes differently:\n%q\n%q",
			QuantizePath(original), QuantizePath(jittered))
	}
}

// replayCtx encodes the path the way the client script does; the raw
// trajectory separators are not query-safe.
func replayCtx(fp, path string) *Ctx {
	return newTestCtx("canvasFP=" + fp + "&webglFP=w&audioFP=a&mousePath=" + url.QueryEscape(path))
}

func TestReplay_FlagsSecondFingerprint(t *testing.T) {
	r, err := NewReplay()
	if err != nil {
		t.Fatal(err)
	}
	path := "10:120,240;150:300,410"

	first := replayCtx("c1", path)
	if err := r.Enrich(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if first.ReplayDetected {
		t.Error("first submitter must not be flagged")
	}

	second := replayCtx("c2", "14:123,244;158:304,412")
	if err := r.Enrich(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	if !second.ReplayDetected {
		t.Fatal("jittered replay from a second fingerprint must be flagged")
	}
	p := hit.ParseParams(second.Hit.QueryString)
	if p.Get("_srv_replayDetected") != "1" {
		t.Error("replay flag not stamped")
	}
	if p.Get("_srv_replayMatchFingerprint") != "c1|w|a" {
		t.Errorf("match fingerprint stamp = %q", p.Get("_srv_replayMatchFingerprint"))
	}
}

func TestReplay_SameFingerprintResubmitIsClean(t *testing.T) {
	r, err := NewReplay()
	if err != nil {
		t.Fatal(err)
	}
	path := "10:120,240;150:300,410"

	r.Enrich(context.Background(), replayCtx("c1", path))
	again := replayCtx("c1", path)
	r.Enrich(context.Background(), again)
	if again.ReplayDetected {
		t.Error("same visitor repeating a movement is not a replay")
	}
}

func TestReplay_FirstSubmitterStaysMatchTarget(t *testing.T) {
	r, err := NewReplay()
	if err != nil {
		t.Fatal(err)
	}
	path := "10:120,240;150:300,410"

	r.Enrich(context.Background(), replayCtx("c1", path))
	r.Enrich(context.Background(), replayCtx("c2", path))

	third := replayCtx("c3", path)
	r.Enrich(context.Background(), third)
	if !third.ReplayDetected {
		t.Fatal("third submitter must be flagged")
	}
	p := hit.ParseParams(third.Hit.QueryString)
	if p.Get("_srv_replayMatchFingerprint") != "c1|w|a" {
		t.Errorf("match should be the original submitter, got %q",
			p.Get("_srv_replayMatchFingerprint"))
	}
}

func TestReplay_SkipsUnfingerprintedAndEmpty(t *testing.T) {
	r, err := NewReplay()
	if err != nil {
		t.Fatal(err)
	}

	noFP := newTestCtx("mousePath=10:120,240")
	if err := r.Enrich(context.Background(), noFP); err != nil {
		t.Fatal(err)
	}
	withFP := replayCtx("c1", "10:120,240")
	if err := r.Enrich(context.Background(), withFP); err != nil {
		t.Fatal(err)
	}
	if withFP.ReplayDetected {
		t.Error("an unfingerprinted hit must not seed the cache")
	}

	noPath := replayCtx("c1", "")
	if err := r.Enrich(context.Background(), noPath); err != nil {
		t.Fatal(err)
	}
	if noPath.ReplayDetected {
		t.Error("a hit without a path has nothing to replay")
	}
}
