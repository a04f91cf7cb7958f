package capture

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFromRequest_PathIDs(t *testing.T) {
	tests := []struct {
		path    string
		company string
		pixel   string
	}{
		{"/12345/0001_SMART.GIF", "12345", "0001"},
		{"/acme/home_SMART.js", "acme", "home"},
		{"/acme/plain", "acme", "plain"},
		{"/acme/", "", ""},
		{"/", "", ""},
		{"/onlyone", "", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "http://pixl.test"+tt.path, nil)
		h := FromRequest(r)
		if h.CompanyID != tt.company || h.PixelID != tt.pixel {
			t.Errorf("FromRequest(%s) ids = (%q, %q), want (%q, %q)",
				tt.path, h.CompanyID, h.PixelID, tt.company, tt.pixel)
		}
	}
}

func TestFromRequest_CapturesBasics(t *testing.T) {
	r := httptest.NewRequest("GET", "http://pixl.test/acme/p1_SMART.GIF?sw=1920&sh=1080", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 test")
	r.Header.Set("Referer", "https://example.com/page")
	r.RemoteAddr = "198.51.100.7:41000"

	h := FromRequest(r)

	if h.QueryString != "sw=1920&sh=1080" {
		t.Errorf("query string = %q", h.QueryString)
	}
	if h.UserAgent != "Mozilla/5.0 test" {
		t.Errorf("user agent = %q", h.UserAgent)
	}
	if h.Referrer != "https://example.com/page" {
		t.Errorf("referrer = %q", h.Referrer)
	}
	if h.Address != "198.51.100.7" {
		t.Errorf("address = %q", h.Address)
	}
	if h.ReceivedAt.IsZero() || h.ReceivedAt.Location() != time.UTC {
		t.Errorf("receivedAt not set in UTC: %v", h.ReceivedAt)
	}
}

func TestClientAddress_HeaderPriority(t *testing.T) {
	r := httptest.NewRequest("GET", "http://pixl.test/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.114.9, 10.0.0.2, 10.0.0.3")
	r.Header.Set("X-Real-IP", "203.0.114.8")
	r.Header.Set("CF-Connecting-IP", "203.0.114.7")

	if got := ClientAddress(r); got != "203.0.114.7" {
		t.Errorf("CF-Connecting-IP should win, got %q", got)
	}

	r.Header.Del("CF-Connecting-IP")
	if got := ClientAddress(r); got != "203.0.114.8" {
		t.Errorf("X-Real-IP next, got %q", got)
	}

	r.Header.Del("X-Real-IP")
	if got := ClientAddress(r); got != "203.0.114.9" {
		t.Errorf("first X-Forwarded-For token next, got %q", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := ClientAddress(r); got != "10.0.0.1" {
		t.Errorf("remote addr fallback, got %q", got)
	}
}

func TestHeadersJSON_AllowlistOnly(t *testing.T) {
	r := httptest.NewRequest("GET", "http://pixl.test/", nil)
	r.Header.Set("User-Agent", "UA")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Cookie", "secret=1")
	r.Header.Set("Authorization", "Bearer x")

	h := FromRequest(r)

	var parsed map[string]string
	if err := json.Unmarshal([]byte(h.HeadersJSON), &parsed); err != nil {
		t.Fatalf("HeadersJson is not valid JSON: %v\n%s", err, h.HeadersJSON)
	}
	if parsed["User-Agent"] != "UA" || parsed["Accept-Language"] != "en-US,en;q=0.9" {
		t.Errorf("allowlisted headers missing: %v", parsed)
	}
	if _, ok := parsed["Cookie"]; ok {
		t.Error("Cookie must not be captured")
	}
	if _, ok := parsed["Authorization"]; ok {
		t.Error("Authorization must not be captured")
	}
}

func TestHeadersJSON_EscapesValues(t *testing.T) {
	r := httptest.NewRequest("GET", "http://pixl.test/", nil)
	r.Header.Set("User-Agent", `quote" back\slash`)
	r.Header.Set("Sec-CH-UA", "\"Chromium\";v=\"130\"")

	h := FromRequest(r)

	var parsed map[string]string
	if err := json.Unmarshal([]byte(h.HeadersJSON), &parsed); err != nil {
		t.Fatalf("escaping broke JSON: %v\n%s", err, h.HeadersJSON)
	}
	if parsed["User-Agent"] != `quote" back\slash` {
		t.Errorf("round trip mismatch: %q", parsed["User-Agent"])
	}
}

func TestFromRequest_TruncatesLongFields(t *testing.T) {
	longRef := "https://example.com/" + strings.Repeat("x", 3000)
	r := httptest.NewRequest("GET", "http://pixl.test/a/b", nil)
	r.Header.Set("Referer", longRef)

	h := FromRequest(r)
	if len(h.Referrer) != 2000 {
		t.Errorf("referrer length = %d, want 2000", len(h.Referrer))
	}
}
