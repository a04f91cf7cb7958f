package enrich

import (
	"context"
	"strings"
)

// gpuTiers maps renderer-string substrings (lower-cased) to a hardware
// tier. First match wins, so the specific model families precede the
// generic vendor fallbacks.
var gpuTiers = []struct {
	token string
	tier  string
}{
	{"rtx 50", "HIGH"},
	{"rtx 40", "HIGH"},
	{"rtx 30", "HIGH"},
	{"rtx 20", "HIGH"},
	{"radeon rx 7", "HIGH"},
	{"radeon rx 6", "HIGH"},
	{"apple m4", "HIGH"},
	{"apple m3", "HIGH"},
	{"apple m2", "HIGH"},
	{"apple m1", "HIGH"},
	{"gtx 16", "MID"},
	{"gtx 10", "MID"},
	{"radeon rx 5", "MID"},
	{"radeon rx 4", "MID"},
	{"radeon pro", "MID"},
	{"adreno 7", "MID"},
	{"adreno 6", "MID"},
	{"mali-g7", "MID"},
	{"apple a1", "MID"},
	{"iris xe", "MID"},
	{"arc a", "MID"},
	{"geforce", "MID"},
	{"quadro", "MID"},
	{"gtx 9", "LOW"},
	{"uhd graphics", "LOW"},
	{"hd graphics", "LOW"},
	{"iris", "LOW"},
	{"adreno 5", "LOW"},
	{"adreno 4", "LOW"},
	{"mali-g5", "LOW"},
	{"mali-t", "LOW"},
	{"powervr", "LOW"},
	{"videocore", "LOW"},
	{"swiftshader", "LOW"},
	{"llvmpipe", "LOW"},
	{"virtualbox", "LOW"},
	{"vmware", "LOW"},
}

// Affluence folds GPU tier, core count, memory, screen resolution and
// platform into a device-affluence tier. Step 9 of tier 2.
type Affluence struct{}

func GPUTier(renderer string) string {
	if renderer == "" {
		return "Unknown"
	}
	l := strings.ToLower(renderer)
	for _, g := range gpuTiers {
		if strings.Contains(l, g.token) {
			return g.tier
		}
	}
	return "Unknown"
}

func (Affluence) Enrich(_ context.Context, ec *Ctx) error {
	gpu := GPUTier(ec.Params.Get("webglRenderer"))
	ec.GPUTier = gpu

	score := 0
	switch gpu {
	case "HIGH":
		score += 3
	case "MID":
		score += 1
	case "LOW":
		score -= 2
	}

	if cores, ok := ec.Params.Int("cores"); ok {
		switch {
		case cores >= 12:
			score += 2
		case cores >= 8:
			score += 1
		case cores <= 2:
			score -= 1
		}
	}
	if mem, ok := ec.Params.Float("deviceMemory"); ok {
		switch {
		case mem >= 16:
			score += 2
		case mem >= 8:
			score += 1
		case mem <= 2:
			score -= 1
		}
	}
	if w, ok := ec.Params.Int("sw"); ok {
		h, _ := ec.Params.Int("sh")
		switch {
		case w >= 3440 || (w >= 2560 && h >= 1440):
			score += 2
		case w >= 1920:
			score += 1
		}
	}
	if p := strings.ToLower(ec.Params.Get("platform")); strings.Contains(p, "mac") {
		score += 1
	}

	switch {
	case score >= 4:
		ec.Affluence = "HIGH"
	case score >= 1:
		ec.Affluence = "MID"
	default:
		ec.Affluence = "LOW"
	}

	ec.Hit.Stamp("_srv_affluence", ec.Affluence)
	ec.Hit.Stamp("_srv_gpuTier", gpu)
	return nil
}
