package hit

import (
	"net/url"
	"strconv"
	"time"
)

// MaxFieldLen caps UserAgent and Referrer at capture time. The raw table
// declares these columns at the same width.
const MaxFieldLen = 2000

// Hit is the unit of work flowing from the edge HTTP handler through the
// handoff and enrichment pipeline to the relational store. The JSON tags are
// the handoff wire contract: one hit per newline-delimited JSON record.
//
// QueryString is append-only after capture: enrichers add _srv_* parameters
// via Stamp, nothing already present is ever rewritten or removed.
type Hit struct {
	CompanyID   string    `json:"CompanyID"`
	PixelID     string    `json:"PiXLID"`
	Address     string    `json:"IPAddress"`
	RequestPath string    `json:"RequestPath"`
	QueryString string    `json:"QueryString"`
	HeadersJSON string    `json:"HeadersJson"`
	UserAgent   string    `json:"UserAgent"`
	Referrer    string    `json:"Referer"`
	ReceivedAt  time.Time `json:"ReceivedAt"`
}

// Stamp appends a server-side parameter to the query string. The key is used
// verbatim (callers pass fixed _srv_* literals); the value is URL-encoded
// here so no other code path needs to think about escaping.
func (h *Hit) Stamp(key, value string) {
	if h.QueryString != "" {
		h.QueryString += "&"
	}
	h.QueryString += key + "=" + url.QueryEscape(value)
}

// StampInt is Stamp for integer values.
func (h *Hit) StampInt(key string, value int) {
	h.Stamp(key, strconv.Itoa(value))
}

// StampFlag stamps key=1. Alert-style parameters are present-or-absent,
// never key=0.
func (h *Hit) StampFlag(key string) {
	h.Stamp(key, "1")
}

// Truncate returns s cut to MaxFieldLen code units.
func Truncate(s string) string {
	if len(s) > MaxFieldLen {
		return s[:MaxFieldLen]
	}
	return s
}

// CompositeFingerprint joins the three client fingerprint hashes into the
// pipe-separated composite used as the identity key by the fingerprint
// tracker, session stitching and replay detection. Components may be empty;
// the separators are always present.
func CompositeFingerprint(canvas, webgl, audio string) string {
	return canvas + "|" + webgl + "|" + audio
}
