package enrich

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const crossWindow = 5 * time.Minute

// CrossCustomer tracks which distinct companies one (address, fingerprint)
// pair has hit recently. The same visitor surfacing on three customers'
// sites inside five minutes is crawling, not shopping. Step 8 of tier 2.
type CrossCustomer struct {
	cache *gocache.Cache
	now   func() time.Time
}

type crossEntry struct {
	mu        sync.Mutex
	companies map[string]time.Time
}

func NewCrossCustomer() *CrossCustomer {
	return &CrossCustomer{
		cache: gocache.New(crossWindow, time.Minute),
		now:   time.Now,
	}
}

func (c *CrossCustomer) Enrich(_ context.Context, ec *Ctx) error {
	if ec.Hit.CompanyID == "" {
		return nil
	}
	key := "cross:" + ec.Hit.Address + "|" + ec.Fingerprint

	var e *crossEntry
	if v, ok := c.cache.Get(key); ok {
		e = v.(*crossEntry)
	} else {
		e = &crossEntry{companies: make(map[string]time.Time)}
	}
	c.cache.Set(key, e, crossWindow)

	now := c.now()

	e.mu.Lock()
	for company, seen := range e.companies {
		if now.Sub(seen) > crossWindow {
			delete(e.companies, company)
		}
	}
	e.companies[ec.Hit.CompanyID] = now
	count := len(e.companies)
	e.mu.Unlock()

	ec.CrossCompanies = count
	ec.Hit.StampInt("_srv_crossCompanies", count)
	if count >= 3 {
		ec.CrossCustomerAlert = true
		ec.Hit.StampFlag("_srv_crossCustomerAlert")
	}
	return nil
}
