package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const sessionIdleLimit = 30 * time.Minute

// Sessions stitches hits into fingerprint-scoped sessions separated by at
// most 30 minutes of idleness. Step 7, first of tier 2.
type Sessions struct {
	cache *gocache.Cache
	now   func() time.Time
}

type session struct {
	mu        sync.Mutex
	id        string
	firstSeen time.Time
	lastSeen  time.Time
	hitCount  int
	pages     map[string]struct{}
}

func NewSessions() *Sessions {
	return &Sessions{
		cache: gocache.New(sessionIdleLimit, 10*time.Minute),
		now:   time.Now,
	}
}

func (s *Sessions) Enrich(_ context.Context, ec *Ctx) error {
	// A hit with no fingerprint at all ("||") still stitches; script-less
	// legacy hits from the same client share one anonymous session key per
	// address instead.
	key := "sess:" + ec.Fingerprint
	if ec.Fingerprint == "||" {
		key = "sess:addr:" + ec.Hit.Address
	}

	now := s.now()

	var sess *session
	if v, ok := s.cache.Get(key); ok {
		sess = v.(*session)
	} else {
		sess = &session{}
	}
	s.cache.Set(key, sess, sessionIdleLimit)

	sess.mu.Lock()
	if sess.id == "" || now.Sub(sess.lastSeen) > sessionIdleLimit {
		sess.id = uuid.NewString()
		sess.firstSeen = now
		sess.hitCount = 0
		sess.pages = make(map[string]struct{})
	}
	sess.lastSeen = now
	sess.hitCount++
	if page := ec.Params.Get("pageUrl"); page != "" {
		sess.pages[page] = struct{}{}
	}

	ec.SessionID = sess.id
	ec.SessionHitNum = sess.hitCount
	ec.SessionDurationSec = int(now.Sub(sess.firstSeen) / time.Second)
	ec.SessionPageCount = len(sess.pages)
	sess.mu.Unlock()

	ec.Hit.Stamp("_srv_sessionId", ec.SessionID)
	ec.Hit.StampInt("_srv_sessionHitNum", ec.SessionHitNum)
	ec.Hit.StampInt("_srv_sessionDurationSec", ec.SessionDurationSec)
	ec.Hit.StampInt("_srv_sessionPageCount", ec.SessionPageCount)
	return nil
}
