package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func newSessionsAt(start time.Time) (*Sessions, *time.Time) {
	clock := start
	s := NewSessions()
	s.now = func() time.Time { return clock }
	return s, &clock
}

func sessionCtx(canvas, addr, page string) *Ctx {
	q := "canvasFP=" + canvas + "&webglFP=w&audioFP=a"
	if page != "" {
		q += "&pageUrl=" + page
	}
	return NewCtx(&hit.Hit{CompanyID: "acme", Address: addr, QueryString: q})
}

func TestSessions_FirstHitOpensSession(t *testing.T) {
	s, _ := newSessionsAt(time.Now())
	ec := sessionCtx("c1", "1.2.3.4", "%2Fhome")
	if err := s.Enrich(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	if ec.SessionID == "" {
		t.Fatal("no session id assigned")
	}
	if ec.SessionHitNum != 1 || ec.SessionDurationSec != 0 || ec.SessionPageCount != 1 {
		t.Errorf("first hit: %+v", ec)
	}
	p := hit.ParseParams(ec.Hit.QueryString)
	if p.Get("_srv_sessionId") != ec.SessionID || p.Get("_srv_sessionHitNum") != "1" {
		t.Errorf("stamps: %q", ec.Hit.QueryString)
	}
}

func TestSessions_StitchesWithinIdleLimit(t *testing.T) {
	s, clock := newSessionsAt(time.Now())

	first := sessionCtx("c1", "1.2.3.4", "%2Fhome")
	s.Enrich(context.Background(), first)

	*clock = clock.Add(10 * time.Minute)
	second := sessionCtx("c1", "1.2.3.4", "%2Fpricing")
	s.Enrich(context.Background(), second)

	if second.SessionID != first.SessionID {
		t.Error("hits within the idle limit must share a session")
	}
	if second.SessionHitNum != 2 || second.SessionDurationSec != 600 {
		t.Errorf("second hit: num=%d dur=%d", second.SessionHitNum, second.SessionDurationSec)
	}
	if second.SessionPageCount != 2 {
		t.Errorf("page count = %d, want 2", second.SessionPageCount)
	}

	// Revisiting a page does not grow the distinct-page count.
	*clock = clock.Add(time.Minute)
	third := sessionCtx("c1", "1.2.3.4", "%2Fhome")
	s.Enrich(context.Background(), third)
	if third.SessionPageCount != 2 {
		t.Errorf("revisit page count = %d, want 2", third.SessionPageCount)
	}
}

func TestSessions_IdleRollover(t *testing.T) {
	s, clock := newSessionsAt(time.Now())

	first := sessionCtx("c1", "1.2.3.4", "%2Fhome")
	s.Enrich(context.Background(), first)

	*clock = clock.Add(31 * time.Minute)
	second := sessionCtx("c1", "1.2.3.4", "%2Fhome")
	s.Enrich(context.Background(), second)

	if second.SessionID == first.SessionID {
		t.Error("31 idle minutes must open a new session")
	}
	if second.SessionHitNum != 1 || second.SessionDurationSec != 0 || second.SessionPageCount != 1 {
		t.Errorf("rolled-over session: %+v", second)
	}
}

func TestSessions_FingerprintsIndependent(t *testing.T) {
	s, _ := newSessionsAt(time.Now())

	a := sessionCtx("c1", "1.2.3.4", "")
	s.Enrich(context.Background(), a)
	b := sessionCtx("c2", "1.2.3.4", "")
	s.Enrich(context.Background(), b)

	if a.SessionID == b.SessionID {
		t.Error("different fingerprints must not share a session")
	}
}

func TestSessions_AnonymousHitsKeyByAddress(t *testing.T) {
	s, clock := newSessionsAt(time.Now())

	// Script-less hits carry the empty composite; the address is the only
	// stitching key left.
	first := NewCtx(&hit.Hit{Address: "9.9.9.9"})
	s.Enrich(context.Background(), first)
	*clock = clock.Add(time.Minute)
	second := NewCtx(&hit.Hit{Address: "9.9.9.9"})
	s.Enrich(context.Background(), second)
	other := NewCtx(&hit.Hit{Address: "8.8.8.8"})
	s.Enrich(context.Background(), other)

	if second.SessionID != first.SessionID {
		t.Error("anonymous hits from one address must stitch")
	}
	if other.SessionID == first.SessionID {
		t.Error("anonymous hits from different addresses must not stitch")
	}
}
