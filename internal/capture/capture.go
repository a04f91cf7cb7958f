// Package capture normalizes an incoming pixel request into a Hit. No
// interpretation happens here beyond address extraction and header
// allowlisting; the detectors and enrichers own all semantics.
package capture

import (
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/smartpixl/smartpixl/internal/hit"
)

// pathPattern extracts /{company}/{pixel...} from the request path. The
// pixel token stops at the first underscore so /12345/0001_SMART.GIF yields
// ("12345", "0001"). A non-matching path yields empty IDs, not an error.
var pathPattern = regexp.MustCompile(`^/([^/]+)/([^_/]+)`)

// headerAllowlist is the fixed set of headers captured into HeadersJson, in
// output order. Anything else the browser or proxies send is dropped.
var headerAllowlist = []string{
	"User-Agent",
	"Referer",
	"Accept-Language",
	"DNT",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"Sec-CH-UA",
	"Sec-CH-UA-Mobile",
	"Sec-CH-UA-Platform",
	"Sec-CH-UA-Platform-Version",
	"Sec-CH-UA-Arch",
	"Sec-CH-UA-Model",
	"Sec-CH-UA-Full-Version-List",
	"Sec-Fetch-Site",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Dest",
	"Sec-Fetch-User",
	"X-TLS-Fingerprint",
	"X-JA3-Fingerprint",
	"X-JA4",
}

// addressHeaders is the proxy-header priority chain; first non-empty wins.
var addressHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

// FromRequest builds a Hit from an incoming pixel request. ReceivedAt is set
// exactly once, here. All string fields are non-nil afterwards; empty is
// permitted everywhere.
func FromRequest(r *http.Request) *hit.Hit {
	h := &hit.Hit{
		Address:     ClientAddress(r),
		RequestPath: r.URL.Path,
		QueryString: r.URL.RawQuery,
		HeadersJSON: headersJSON(r),
		UserAgent:   hit.Truncate(r.UserAgent()),
		Referrer:    hit.Truncate(r.Referer()),
		ReceivedAt:  time.Now().UTC(),
	}

	if m := pathPattern.FindStringSubmatch(r.URL.Path); m != nil {
		h.CompanyID = m[1]
		h.PixelID = m[2]
	}

	return h
}

// ClientAddress resolves the remote peer behind any proxy layers. The
// X-Forwarded-For chain contributes only its first token. An empty result
// is permitted and flows downstream as an empty string.
func ClientAddress(r *http.Request) string {
	for _, name := range addressHeaders {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		if name == "X-Forwarded-For" {
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// headersJSON builds the flat JSON object over the allowlist, escaping
// values on the fly without an intermediate map.
func headersJSON(r *http.Request) string {
	var b strings.Builder
	b.Grow(256)
	b.WriteByte('{')
	first := true
	for _, name := range headerAllowlist {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteByte('"')
		b.WriteString(name)
		b.WriteString(`":"`)
		writeJSONEscaped(&b, v)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

const hexDigits = "0123456789abcdef"

func writeJSONEscaped(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xF])
		default:
			b.WriteByte(c)
		}
	}
}
