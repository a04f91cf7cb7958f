package enrich

import (
	"context"
	"strings"
)

// Cultural checks whether the client's self-reported locale signals agree
// with where its address actually is. A browser claiming en-US with a
// US-style number format while its address sits in another region is being
// arbitraged. Step 12 of tier 3.
//
// Seven weighted signals, each deducted from a perfect 100 when it
// contradicts the geo region. Signals that cannot be evaluated (missing
// param or missing geo) neither add nor deduct.
type Cultural struct{}

var cjkCountries = map[string]bool{
	"CN": true, "JP": true, "KR": true, "TW": true, "HK": true,
}

// commaDecimalCountries use "." for digit grouping and "," as the decimal
// separator, so (1234.5).toLocaleString() renders "1.234,5".
var commaDecimalCountries = map[string]bool{
	"DE": true, "FR": true, "ES": true, "IT": true, "NL": true, "BE": true,
	"AT": true, "PT": true, "BR": true, "AR": true, "CL": true, "CO": true,
	"DK": true, "SE": true, "NO": true, "FI": true, "PL": true, "CZ": true,
	"TR": true, "RU": true, "UA": true, "GR": true, "RO": true, "HU": true,
}

var cjkFontTokens = []string{
	"ms gothic", "meiryo", "yu gothic", "hiragino",
	"simsun", "simhei", "microsoft yahei", "pingfang",
	"malgun gothic", "batang", "gulim", "apple sd gothic",
}

func (Cultural) Enrich(_ context.Context, ec *Ctx) error {
	cc := geoCountry(ec)
	score := 100
	var flags []string

	deduct := func(weight int, flag string) {
		score -= weight
		flags = append(flags, flag)
	}

	// 1. Language region suffix vs geo country (20).
	if lang := ec.Params.Get("lang"); cc != "" && strings.Contains(lang, "-") {
		region := strings.ToUpper(lang[strings.LastIndex(lang, "-")+1:])
		if len(region) == 2 && region != cc && !compatibleLangRegion(region, cc) {
			deduct(20, "lang_region")
		}
	}

	// 2. Client timezone vs geo timezone, as seen by the edge (20).
	if ec.Params.Has("_srv_geoTzMismatch") {
		deduct(20, "timezone")
	}

	// 3. Primary language missing from the language list (10).
	if lang, langs := ec.Params.Get("lang"), ec.Params.Get("languages"); lang != "" && langs != "" {
		if !listContains(langs, lang) && !listContains(langs, baseLang(lang)) {
			deduct(10, "language_list")
		}
	}

	// 4. Intl locale disagrees with navigator.language (15).
	if lang, locale := ec.Params.Get("lang"), ec.Params.Get("locale"); lang != "" && locale != "" {
		if !strings.EqualFold(baseLang(lang), baseLang(locale)) {
			deduct(15, "locale")
		}
	}

	// 5. Non-gregorian calendar in a gregorian-calendar region (10).
	if cal := ec.Params.Get("calendar"); cal != "" && cal != "gregory" && cc != "" &&
		cc != "SA" && cc != "IR" && cc != "AF" && cc != "TH" && cc != "IL" {
		deduct(10, "calendar")
	}

	// 6. Number format separator style vs region (10).
	if nf := ec.Params.Get("numberFormat"); nf != "" && cc != "" {
		usStyle := strings.Contains(nf, "1,234")
		euStyle := strings.Contains(nf, "1.234") || strings.Contains(nf, "1 234")
		if commaDecimalCountries[cc] && usStyle {
			deduct(10, "number_format")
		} else if !commaDecimalCountries[cc] && euStyle && (cc == "US" || cc == "GB" || cc == "CA" || cc == "AU") {
			deduct(10, "number_format")
		}
	}

	// 7. CJK region with fonts probed but no CJK font found (15).
	if fonts := strings.ToLower(ec.Params.Get("fonts")); cjkCountries[cc] && fonts != "" {
		found := false
		for _, tok := range cjkFontTokens {
			if strings.Contains(fonts, tok) {
				found = true
				break
			}
		}
		if !found {
			deduct(15, "fonts")
		}
	}

	if score < 0 {
		score = 0
	}
	ec.CulturalScore = score
	ec.CulturalFlags = flags
	ec.Hit.StampInt("_srv_culturalScore", score)
	if len(flags) > 0 {
		ec.Hit.Stamp("_srv_culturalFlags", strings.Join(flags, ","))
	}
	return nil
}

func geoCountry(ec *Ctx) string {
	if ec.MMCountry != "" {
		return strings.ToUpper(ec.MMCountry)
	}
	if ec.APICountry != "" {
		return strings.ToUpper(ec.APICountry)
	}
	return strings.ToUpper(ec.Params.Get("_srv_geoCC"))
}

// compatibleLangRegion allows the common expat pairs that are not really
// arbitrage, like en-US browsers in Canada or the UK.
func compatibleLangRegion(region, cc string) bool {
	anglo := map[string]bool{"US": true, "GB": true, "CA": true, "AU": true, "NZ": true, "IE": true}
	return anglo[region] && anglo[cc]
}

func baseLang(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}

func listContains(csv, want string) bool {
	for _, item := range strings.Split(csv, ",") {
		if strings.EqualFold(strings.TrimSpace(item), want) {
			return true
		}
	}
	return false
}
