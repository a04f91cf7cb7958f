// Package datacenter answers "is this address inside a known cloud
// provider's published range" from a CIDR list refreshed out-of-band. The
// list is immutable once built and swapped by atomic pointer, so request
// goroutines never take a lock.
package datacenter

import (
	"net/netip"
	"sync/atomic"
)

// Entry is one CIDR range with its provider tag. Immutable after
// construction.
type Entry struct {
	Network  []byte // 4 or 16 bytes
	Prefix   int
	Provider string
}

type Matcher struct {
	entries atomic.Pointer[[]Entry]
}

func NewMatcher() *Matcher {
	m := &Matcher{}
	empty := []Entry{}
	m.entries.Store(&empty)
	return m
}

// Swap atomically replaces the active list. Callers must not mutate entries
// after handing them over.
func (m *Matcher) Swap(entries []Entry) {
	m.entries.Store(&entries)
}

// Len reports the size of the active list.
func (m *Matcher) Len() int {
	return len(*m.entries.Load())
}

// Check matches addr against the active list and returns the provider tag of
// the longest matching prefix. Address families never cross-match.
func (m *Matcher) Check(addr string) (bool, string) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false, ""
	}

	var b []byte
	if a.Is4() || a.Is4In6() {
		v := a.Unmap().As4()
		b = v[:]
	} else {
		v := a.As16()
		b = v[:]
	}

	entries := *m.entries.Load()
	bestLen := -1
	bestProvider := ""
	for i := range entries {
		e := &entries[i]
		if len(e.Network) != len(b) || e.Prefix <= bestLen {
			continue
		}
		if cidrMatch(b, e.Network, e.Prefix) {
			bestLen = e.Prefix
			bestProvider = e.Provider
		}
	}
	return bestLen >= 0, bestProvider
}

// cidrMatch compares addr to network under a prefix-length mask: whole bytes
// first, then the remainder byte under 0xFF << (8 - remainBits).
func cidrMatch(addr, network []byte, prefix int) bool {
	fullBytes := prefix >> 3
	remainBits := prefix & 7
	for i := 0; i < fullBytes; i++ {
		if addr[i] != network[i] {
			return false
		}
	}
	if remainBits != 0 {
		mask := byte(0xFF << (8 - remainBits))
		if addr[fullBytes]&mask != network[fullBytes]&mask {
			return false
		}
	}
	return true
}

// ParseEntry builds an Entry from a CIDR string. Returns false for
// unparseable input.
func ParseEntry(cidr, provider string) (Entry, bool) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return Entry{}, false
	}
	a := p.Addr()
	var network []byte
	if a.Is4() {
		v := a.As4()
		network = v[:]
	} else {
		v := a.As16()
		network = v[:]
	}
	return Entry{Network: network, Prefix: p.Bits(), Provider: provider}, true
}
