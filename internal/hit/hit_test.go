package hit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStamp_AppendsWithSeparator(t *testing.T) {
	h := &Hit{QueryString: "sw=1920"}
	h.Stamp("_srv_hitType", "modern")
	if h.QueryString != "sw=1920&_srv_hitType=modern" {
		t.Errorf("unexpected query string: %q", h.QueryString)
	}
}

func TestStamp_EmptyQueryString(t *testing.T) {
	h := &Hit{}
	h.Stamp("_srv_hitType", "legacy")
	if h.QueryString != "_srv_hitType=legacy" {
		t.Errorf("unexpected query string: %q", h.QueryString)
	}
}

func TestStamp_EscapesValue(t *testing.T) {
	h := &Hit{}
	h.Stamp("_srv_geoCity", "San José & Co")
	if strings.Contains(h.QueryString, " ") || strings.Contains(h.QueryString, "é") {
		t.Errorf("value not escaped: %q", h.QueryString)
	}
	if !strings.HasPrefix(h.QueryString, "_srv_geoCity=") {
		t.Errorf("key mangled: %q", h.QueryString)
	}
}

func TestStampInt_And_Flag(t *testing.T) {
	h := &Hit{}
	h.StampInt("_srv_fpObs", 42)
	h.StampFlag("_srv_fpAlert")
	if h.QueryString != "_srv_fpObs=42&_srv_fpAlert=1" {
		t.Errorf("unexpected query string: %q", h.QueryString)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", MaxFieldLen+100)
	if got := Truncate(long); len(got) != MaxFieldLen {
		t.Errorf("expected %d chars, got %d", MaxFieldLen, len(got))
	}
	if got := Truncate("short"); got != "short" {
		t.Errorf("short string modified: %q", got)
	}
}

func TestCompositeFingerprint(t *testing.T) {
	if got := CompositeFingerprint("c", "w", "a"); got != "c|w|a" {
		t.Errorf("unexpected composite: %q", got)
	}
	if got := CompositeFingerprint("", "", ""); got != "||" {
		t.Errorf("empty composite should keep separators, got %q", got)
	}
}

func TestWireContract_JSONKeys(t *testing.T) {
	h := &Hit{
		CompanyID:   "acme",
		PixelID:     "p1",
		Address:     "203.0.113.9",
		RequestPath: "/acme/p1_SMART.GIF",
		QueryString: "sw=1920",
		HeadersJSON: `{"User-Agent":"x"}`,
		UserAgent:   "x",
		Referrer:    "https://example.com",
		ReceivedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The receiving side is matched by key name; these are load-bearing.
	for _, key := range []string{
		`"CompanyID"`, `"PiXLID"`, `"IPAddress"`, `"RequestPath"`,
		`"QueryString"`, `"HeadersJson"`, `"UserAgent"`, `"Referer"`, `"ReceivedAt"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire record missing key %s: %s", key, data)
		}
	}

	var back Hit
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.PixelID != "p1" || back.Address != "203.0.113.9" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}
