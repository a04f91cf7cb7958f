package datacenter

import "testing"

func mustEntry(t *testing.T, cidr, provider string) Entry {
	t.Helper()
	e, ok := ParseEntry(cidr, provider)
	if !ok {
		t.Fatalf("ParseEntry(%s) failed", cidr)
	}
	return e
}

func TestCheck_BasicMatch(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{
		mustEntry(t, "3.0.0.0/8", "AWS"),
		mustEntry(t, "34.64.0.0/10", "GCP"),
	})

	tests := []struct {
		addr     string
		matched  bool
		provider string
	}{
		{"3.5.1.9", true, "AWS"},
		{"34.64.0.1", true, "GCP"},
		{"34.128.0.1", false, ""},
		{"8.8.8.8", false, ""},
	}
	for _, tt := range tests {
		matched, provider := m.Check(tt.addr)
		if matched != tt.matched || provider != tt.provider {
			t.Errorf("Check(%s) = (%v, %q), want (%v, %q)",
				tt.addr, matched, provider, tt.matched, tt.provider)
		}
	}
}

func TestCheck_LongestPrefixWins(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{
		mustEntry(t, "3.0.0.0/8", "AWS"),
		mustEntry(t, "3.5.0.0/16", "AWS-S3"),
	})

	_, provider := m.Check("3.5.1.9")
	if provider != "AWS-S3" {
		t.Errorf("expected longest prefix AWS-S3, got %q", provider)
	}
	_, provider = m.Check("3.9.1.9")
	if provider != "AWS" {
		t.Errorf("expected /8 fallback AWS, got %q", provider)
	}
}

func TestCheck_NoCrossFamilyMatch(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{
		mustEntry(t, "2600:1f00::/24", "AWS"),
		mustEntry(t, "3.0.0.0/8", "AWS"),
	})

	if matched, _ := m.Check("2600:1f18::1"); !matched {
		t.Error("IPv6 range should match IPv6 address")
	}
	// The first byte of 3.0.0.0 (0x03) must not match any 16-byte network.
	if matched, _ := m.Check("300::1"); matched {
		t.Error("IPv4 range must not match an IPv6 address")
	}
}

func TestCheck_MappedV4(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{mustEntry(t, "3.0.0.0/8", "AWS")})

	matched, provider := m.Check("::ffff:3.5.1.9")
	if !matched || provider != "AWS" {
		t.Errorf("mapped v4 = (%v, %q), want (true, AWS)", matched, provider)
	}
}

func TestCheck_NonByteAlignedPrefix(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{mustEntry(t, "100.64.0.0/10", "DC")})

	if matched, _ := m.Check("100.127.0.1"); !matched {
		t.Error("100.127.0.1 is inside 100.64.0.0/10")
	}
	if matched, _ := m.Check("100.128.0.1"); matched {
		t.Error("100.128.0.1 is outside 100.64.0.0/10")
	}
}

func TestCheck_InvalidAddress(t *testing.T) {
	m := NewMatcher()
	m.Swap([]Entry{mustEntry(t, "3.0.0.0/8", "AWS")})

	if matched, _ := m.Check("not-an-address"); matched {
		t.Error("garbage address must not match")
	}
}

func TestParseEntry_Invalid(t *testing.T) {
	if _, ok := ParseEntry("not-a-cidr", "X"); ok {
		t.Error("expected ParseEntry to reject garbage")
	}
}
