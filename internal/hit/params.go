package hit

import (
	"net/url"
	"strconv"
	"strings"
)

// Params is a parsed, read-only view of the client-sent query parameters.
// The forge parses the query string once per hit and hands the same view to
// every enrichment step. Unknown keys are preserved in the stored query
// string regardless; Params only answers lookups.
type Params struct {
	values url.Values
}

// ParseParams parses a raw query string (no leading '?'). Malformed pairs are
// dropped by the URL parser; that is acceptable because client data is never
// authoritative.
func ParseParams(qs string) Params {
	v, err := url.ParseQuery(qs)
	if err != nil && v == nil {
		v = url.Values{}
	}
	return Params{values: v}
}

// Get returns the first value for key, or "" when absent.
func (p Params) Get(key string) string {
	return p.values.Get(key)
}

// Has reports whether key is present, even with an empty value.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Int returns the value of key parsed as an integer. ok is false when the
// key is absent or not numeric.
func (p Params) Int(key string) (int, bool) {
	s := p.values.Get(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Tolerate floats sent for integral fields (e.g. deviceMemory=0.5).
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// Float returns the value of key parsed as a float64.
func (p Params) Float(key string) (float64, bool) {
	s := p.values.Get(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool interprets the common truthy spellings clients send: "1", "true",
// "yes" (case-insensitive). Absent or anything else is false.
func (p Params) Bool(key string) bool {
	switch strings.ToLower(p.values.Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
