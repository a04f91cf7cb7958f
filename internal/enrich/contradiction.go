package enrich

import (
	"context"
	"strings"
)

// Contradictions evaluates a fixed catalog of 13 cross-signal rules. A
// device that claims things no real device can claim at once is lying about
// at least one of them. Step 11, first of tier 3.
//
// Rules are partitioned by severity: IMPOSSIBLE combinations cannot occur
// on genuine hardware, IMPROBABLE ones occur only in exotic setups, and
// SUSPICIOUS ones are weak on their own but compound.
type Contradictions struct{}

type contradictionRule struct {
	name  string
	check func(*Ctx) bool
}

var contradictionRules = []contradictionRule{
	// IMPOSSIBLE.
	{"IMPOSSIBLE:mobile_highres_mouse", func(ec *Ctx) bool {
		w, _ := ec.Params.Int("sw")
		h, _ := ec.Params.Int("sh")
		moves, _ := ec.Params.Int("mouseMoves")
		return isMobile(ec) && w > 2000 && h > 1000 && moves > 0
	}},
	{"IMPOSSIBLE:macos_directx_gpu", func(ec *Ctx) bool {
		r := renderer(ec)
		return osIs(ec, "mac") && (strings.Contains(r, "direct3d") ||
			strings.Contains(r, "d3d11") || strings.Contains(r, "d3d9"))
	}},
	{"IMPOSSIBLE:battery_macos_safari", func(ec *Ctx) bool {
		return ec.Params.Has("batteryLevel") && osIs(ec, "mac") &&
			strings.Contains(strings.ToLower(ec.Browser), "safari")
	}},
	{"IMPOSSIBLE:mobile_no_touch", func(ec *Ctx) bool {
		tp, ok := ec.Params.Int("touchPoints")
		return isMobile(ec) && ok && tp == 0
	}},
	{"IMPOSSIBLE:platform_os_mismatch", func(ec *Ctx) bool {
		p := strings.ToLower(ec.Params.Get("platform"))
		if p == "" {
			return false
		}
		if strings.HasPrefix(p, "win") && (osIs(ec, "mac") || osIs(ec, "ios")) {
			return true
		}
		return strings.HasPrefix(p, "mac") && osIs(ec, "windows")
	}},
	{"IMPOSSIBLE:ios_pc_gpu", func(ec *Ctx) bool {
		r := renderer(ec)
		return osIs(ec, "ios") && (strings.Contains(r, "nvidia") ||
			strings.Contains(r, "geforce") || strings.Contains(r, "radeon"))
	}},
	{"IMPOSSIBLE:windows_apple_gpu", func(ec *Ctx) bool {
		r := renderer(ec)
		return osIs(ec, "windows") && (strings.Contains(r, "apple m") ||
			strings.Contains(r, "apple gpu"))
	}},

	// IMPROBABLE.
	{"IMPROBABLE:headless_with_mouse", func(ec *Ctx) bool {
		moves, _ := ec.Params.Int("mouseMoves")
		return ec.Params.Bool("headless") && moves > 20
	}},
	{"IMPROBABLE:mobile_many_cores", func(ec *Ctx) bool {
		cores, ok := ec.Params.Int("cores")
		return isMobile(ec) && ok && cores >= 16
	}},
	{"IMPROBABLE:desktop_tiny_screen", func(ec *Ctx) bool {
		w, ok := ec.Params.Int("sw")
		dpr, _ := ec.Params.Float("dpr")
		return !isMobile(ec) && ok && w > 0 && w < 800 && dpr <= 1
	}},

	// SUSPICIOUS.
	{"SUSPICIOUS:webdriver_flag", func(ec *Ctx) bool {
		return ec.Params.Bool("webdriver")
	}},
	{"SUSPICIOUS:no_language_list", func(ec *Ctx) bool {
		return ec.Params.Get("lang") != "" && ec.Params.Has("languages") &&
			ec.Params.Get("languages") == ""
	}},
	{"SUSPICIOUS:desktop_zero_fonts", func(ec *Ctx) bool {
		fonts, ok := ec.Params.Int("fontCount")
		return !isMobile(ec) && ec.Params.Get("canvasFP") != "" && ok && fonts == 0
	}},
}

func (Contradictions) Enrich(_ context.Context, ec *Ctx) error {
	for _, rule := range contradictionRules {
		if rule.check(ec) {
			ec.Contradictions = append(ec.Contradictions, rule.name)
		}
	}
	ec.Hit.StampInt("_srv_contradictions", len(ec.Contradictions))
	if len(ec.Contradictions) > 0 {
		ec.Hit.Stamp("_srv_contradictionList", strings.Join(ec.Contradictions, ","))
	}
	return nil
}

func isMobile(ec *Ctx) bool {
	if strings.EqualFold(ec.DeviceType, "mobile") {
		return true
	}
	return osIs(ec, "ios") || osIs(ec, "android")
}

func osIs(ec *Ctx, token string) bool {
	return strings.Contains(strings.ToLower(ec.OS), token)
}

func renderer(ec *Ctx) string {
	return strings.ToLower(ec.Params.Get("webglRenderer"))
}
