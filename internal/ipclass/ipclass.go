// Package ipclass classifies IP address strings into address-space
// categories without allocating on the IPv4 fast path. The edge calls
// Classify on every hit, so the IPv4 parser is hand-rolled and the range
// table is matched with integer compares only.
package ipclass

import "net/netip"

// Type is the address-space category. The ordinal values are stamped into
// the query string (_srv_ipType) and must stay stable.
type Type uint8

const (
	Public Type = iota
	Private
	Loopback
	LinkLocal
	CGNAT
	Multicast
	Broadcast
	Documentation
	Benchmark
	Reserved
	Unspecified
	Invalid
)

var typeNames = [...]string{
	"public", "private", "loopback", "link-local", "cgnat", "multicast",
	"broadcast", "documentation", "benchmark", "reserved", "unspecified",
	"invalid",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "invalid"
}

// Result of a classification. Geolocatable is true only for address types a
// geo provider can meaningfully place: Public and CGNAT.
type Result struct {
	Type         Type
	Geolocatable bool
	Note         string
}

type v4Range struct {
	network uint32
	mask    uint32
	typ     Type
	note    string
}

// Ordered: more specific entries precede the wider ranges that contain them.
var v4Table = []v4Range{
	{0x00000000, 0xFFFFFFFF, Unspecified, "unspecified"},        // 0.0.0.0/32
	{0x00000000, 0xFF000000, Reserved, "this-network"},          // 0.0.0.0/8
	{0x7F000000, 0xFF000000, Loopback, "loopback"},              // 127.0.0.0/8
	{0x0A000000, 0xFF000000, Private, "rfc1918"},                // 10.0.0.0/8
	{0xAC100000, 0xFFF00000, Private, "rfc1918"},                // 172.16.0.0/12
	{0xC0A80000, 0xFFFF0000, Private, "rfc1918"},                // 192.168.0.0/16
	{0xA9FE0000, 0xFFFF0000, LinkLocal, "link-local"},           // 169.254.0.0/16
	{0x64400000, 0xFFC00000, CGNAT, "rfc6598"},                  // 100.64.0.0/10
	{0xC0000200, 0xFFFFFF00, Documentation, "test-net-1"},       // 192.0.2.0/24
	{0xC6336400, 0xFFFFFF00, Documentation, "test-net-2"},       // 198.51.100.0/24
	{0xCB007100, 0xFFFFFF00, Documentation, "test-net-3"},       // 203.0.113.0/24
	{0xC6120000, 0xFFFE0000, Benchmark, "benchmark"},            // 198.18.0.0/15
	{0xC0000000, 0xFFFFFF00, Reserved, "ietf-protocol"},         // 192.0.0.0/24
	{0xFFFFFFFF, 0xFFFFFFFF, Broadcast, "broadcast"},            // 255.255.255.255/32
	{0xE0000000, 0xF0000000, Multicast, "multicast"},            // 224.0.0.0/4
	{0xF0000000, 0xF0000000, Reserved, "class-e"},               // 240.0.0.0/4
}

type v6Range struct {
	prefix [16]byte
	bits   int
	typ    Type
	note   string
}

var v6Table = []v6Range{
	{[16]byte{}, 128, Unspecified, "unspecified"},
	{[16]byte{15: 1}, 128, Loopback, "loopback"},
	{[16]byte{0x00, 0x64, 0xff, 0x9b}, 96, Public, "nat64"},
	{[16]byte{0x01}, 64, Reserved, "discard"},
	{[16]byte{0x20, 0x01, 0x0d, 0xb8}, 32, Documentation, "documentation"},
	{[16]byte{0x20, 0x01}, 32, Public, "teredo"},
	{[16]byte{0x20, 0x02}, 16, Public, "6to4"},
	{[16]byte{0x3f, 0xff}, 20, Documentation, "documentation"},
	{[16]byte{0xfe, 0x80}, 10, LinkLocal, "link-local"},
	{[16]byte{0xfc}, 7, Private, "ula"},
	{[16]byte{0xff}, 8, Multicast, "multicast"},
}

// Classify categorizes an address string. It is total: any input, including
// garbage, yields a Result (Invalid for unparseable strings). It never
// allocates for a valid dotted-quad IPv4.
func Classify(addr string) Result {
	if addr == "" {
		return Result{Type: Invalid, Note: "empty"}
	}

	// IPv4-mapped IPv6 forwards to the IPv4 path.
	if len(addr) > 7 && (addr[0] == ':' && addr[1] == ':') {
		if hasMappedPrefix(addr) {
			return Classify(addr[7:])
		}
	}

	for i := 0; i < len(addr); i++ {
		switch addr[i] {
		case '.':
			return classify4(addr)
		case ':':
			return classify6(addr)
		}
	}
	return Result{Type: Invalid, Note: "unparseable"}
}

func hasMappedPrefix(addr string) bool {
	const p = "::ffff:"
	if len(addr) < len(p) {
		return false
	}
	for i := 2; i < len(p); i++ {
		c := addr[i]
		if c != p[i] && c != p[i]-('a'-'A') {
			return false
		}
	}
	return true
}

func classify4(addr string) Result {
	v, ok := parse4(addr)
	if !ok {
		return Result{Type: Invalid, Note: "bad-ipv4"}
	}
	for _, r := range v4Table {
		if v&r.mask == r.network {
			return Result{Type: r.typ, Geolocatable: r.typ == CGNAT, Note: r.note}
		}
	}
	return Result{Type: Public, Geolocatable: true}
}

// parse4 parses a dotted-quad IPv4 into a big-endian uint32 without
// allocating. Each octet must be 1-3 digits in 0..255; leading garbage,
// trailing garbage and short forms are rejected.
func parse4(addr string) (uint32, bool) {
	var v uint32
	i := 0
	for octet := 0; octet < 4; octet++ {
		if octet > 0 {
			if i >= len(addr) || addr[i] != '.' {
				return 0, false
			}
			i++
		}
		n, digits := 0, 0
		for i < len(addr) && addr[i] >= '0' && addr[i] <= '9' {
			n = n*10 + int(addr[i]-'0')
			digits++
			i++
			if digits > 3 || n > 255 {
				return 0, false
			}
		}
		if digits == 0 {
			return 0, false
		}
		v = v<<8 | uint32(n)
	}
	if i != len(addr) {
		return 0, false
	}
	return v, true
}

func classify6(addr string) Result {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return Result{Type: Invalid, Note: "bad-ipv6"}
	}
	if a.Is4In6() {
		return classify4(a.Unmap().String())
	}
	b := a.As16()
	for _, r := range v6Table {
		if matchPrefix(&b, &r.prefix, r.bits) {
			return Result{Type: r.typ, Geolocatable: r.typ == Public, Note: r.note}
		}
	}
	return Result{Type: Public, Geolocatable: true}
}

func matchPrefix(addr, prefix *[16]byte, bits int) bool {
	full := bits >> 3
	for i := 0; i < full; i++ {
		if addr[i] != prefix[i] {
			return false
		}
	}
	if rem := bits & 7; rem != 0 {
		mask := byte(0xFF << (8 - rem))
		if addr[full]&mask != prefix[full]&mask {
			return false
		}
	}
	return true
}
