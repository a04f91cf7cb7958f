package geocache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/geo"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*geo.Record
	calls   int
	err     error
}

func (f *fakeStore) Lookup(_ context.Context, addr string) (*geo.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[addr], nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runCache(t *testing.T, store *fakeStore) *Cache {
	t.Helper()
	c := New(store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func waitForHit(t *testing.T, c *Cache, addr string) *geo.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec := c.Lookup(addr); rec != nil {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("record for %s never appeared", addr)
	return nil
}

func TestCache_MissThenRefill(t *testing.T) {
	store := &fakeStore{records: map[string]*geo.Record{
		"1.2.3.4": {Address: "1.2.3.4", CountryCode: "US", Timezone: "America/Chicago"},
	}}
	c := runCache(t, store)

	if rec := c.Lookup("1.2.3.4"); rec != nil {
		t.Fatal("first lookup cannot hit")
	}
	rec := waitForHit(t, c, "1.2.3.4")
	if rec.CountryCode != "US" {
		t.Errorf("record = %+v", rec)
	}
}

func TestCache_NegativeEntryDoesNotLoopTheStore(t *testing.T) {
	store := &fakeStore{records: map[string]*geo.Record{}}
	c := runCache(t, store)

	c.Lookup("9.9.9.9")
	deadline := time.Now().Add(time.Second)
	for store.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.callCount() != 1 {
		t.Fatalf("store calls = %d, want 1", store.callCount())
	}

	// The negative entry absorbs further lookups.
	for i := 0; i < 50; i++ {
		if rec := c.Lookup("9.9.9.9"); rec != nil {
			t.Fatal("unknown address returned a record")
		}
	}
	time.Sleep(50 * time.Millisecond)
	if store.callCount() != 1 {
		t.Errorf("negative cache leaked %d extra store calls", store.callCount()-1)
	}
}

func TestCache_RefillErrorLeavesAddressRetryable(t *testing.T) {
	store := &fakeStore{err: errors.New("store down")}
	c := runCache(t, store)

	c.Lookup("1.2.3.4")
	deadline := time.Now().Add(time.Second)
	for store.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The store recovers; a later lookup triggers a fresh refill.
	store.mu.Lock()
	store.err = nil
	store.records = map[string]*geo.Record{"1.2.3.4": {Address: "1.2.3.4", CountryCode: "DE"}}
	store.mu.Unlock()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec := c.Lookup("1.2.3.4"); rec != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("address never refilled after the store recovered")
}

func TestCache_EmptyAddress(t *testing.T) {
	c := New(&fakeStore{}, zap.NewNop())
	if rec := c.Lookup(""); rec != nil {
		t.Error("empty address must not resolve")
	}
}
