package enrich

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// gpuYears maps renderer-string substrings (lower-cased) to the model
// family's release year. Ordered: more specific tokens first.
var gpuYears = []struct {
	token string
	year  int
}{
	{"rtx 50", 2025},
	{"rtx 40", 2022},
	{"rtx 30", 2020},
	{"rtx 20", 2018},
	{"gtx 16", 2019},
	{"gtx 1080", 2016},
	{"gtx 1070", 2016},
	{"gtx 1060", 2016},
	{"gtx 1050", 2016},
	{"gtx 980", 2014},
	{"gtx 970", 2014},
	{"gtx 960", 2015},
	{"gtx 780", 2013},
	{"gtx 760", 2013},
	{"gtx 680", 2012},
	{"gtx 660", 2012},
	{"gtx 580", 2010},
	{"gtx 480", 2010},
	{"gt 1030", 2017},
	{"gt 730", 2014},
	{"gt 710", 2016},
	{"quadro rtx", 2018},
	{"quadro p", 2016},
	{"quadro m", 2015},
	{"quadro k", 2013},
	{"rx 9070", 2025},
	{"rx 7", 2022},
	{"rx 6", 2020},
	{"rx 5700", 2019},
	{"rx 5500", 2019},
	{"rx 580", 2017},
	{"rx 570", 2017},
	{"rx 480", 2016},
	{"rx 470", 2016},
	{"r9 390", 2015},
	{"r9 290", 2013},
	{"r7 260", 2013},
	{"hd 7970", 2012},
	{"hd 7850", 2012},
	{"hd 6870", 2010},
	{"hd 5770", 2009},
	{"vega 64", 2017},
	{"vega 56", 2017},
	{"radeon vii", 2019},
	{"apple m4", 2024},
	{"apple m3", 2023},
	{"apple m2", 2022},
	{"apple m1", 2020},
	{"apple a17", 2023},
	{"apple a16", 2022},
	{"apple a15", 2021},
	{"apple a14", 2020},
	{"apple a13", 2019},
	{"apple a12", 2018},
	{"apple a11", 2017},
	{"apple a10", 2016},
	{"adreno 7", 2022},
	{"adreno 660", 2021},
	{"adreno 650", 2020},
	{"adreno 640", 2019},
	{"adreno 630", 2018},
	{"adreno 540", 2017},
	{"adreno 530", 2016},
	{"adreno 430", 2015},
	{"adreno 330", 2013},
	{"mali-g78", 2020},
	{"mali-g77", 2019},
	{"mali-g76", 2018},
	{"mali-g72", 2017},
	{"mali-g71", 2016},
	{"mali-t880", 2015},
	{"mali-t760", 2014},
	{"mali-t628", 2013},
	{"iris xe", 2020},
	{"iris plus", 2019},
	{"iris pro", 2013},
	{"uhd graphics 7", 2021},
	{"uhd graphics 6", 2017},
	{"uhd graphics", 2017},
	{"hd graphics 6", 2015},
	{"hd graphics 5", 2013},
	{"hd graphics 4", 2012},
	{"hd graphics 3", 2011},
	{"hd graphics", 2010},
	{"arc a7", 2022},
	{"arc a3", 2022},
	{"arc b5", 2024},
}

var softwareRenderers = []string{"swiftshader", "llvmpipe", "softpipe", "mesa offscreen"}

// DeviceAge estimates how old the visitor's hardware is from the GPU model,
// sanity-checked against OS and browser versions, and flags the
// combinations that real users do not produce. Step 13 of tier 3.
type DeviceAge struct {
	now func() time.Time
}

func NewDeviceAge() *DeviceAge {
	return &DeviceAge{now: time.Now}
}

func GPUReleaseYear(rendererStr string) (int, bool) {
	l := strings.ToLower(rendererStr)
	if l == "" {
		return 0, false
	}
	for _, g := range gpuYears {
		if strings.Contains(l, g.token) {
			return g.year, true
		}
	}
	return 0, false
}

func (d *DeviceAge) Enrich(_ context.Context, ec *Ctx) error {
	rendererStr := ec.Params.Get("webglRenderer")
	year, known := GPUReleaseYear(rendererStr)
	if known {
		age := d.now().Year() - year
		if age < 0 {
			age = 0
		}
		ec.DeviceAgeYears = age
		ec.DeviceAgeKnown = true
		ec.Hit.StampInt("_srv_deviceAgeYears", age)
	}

	anomaly := false
	switch {
	// Ancient GPU driving a current browser, no mouse input, hosted address.
	case known && ec.DeviceAgeYears >= 8 && modernBrowser(ec) && zeroMouse(ec) && ec.Datacenter():
		anomaly = true
	// Decade-old GPU claiming a current OS release.
	case known && ec.DeviceAgeYears >= 10 && modernOS(ec):
		anomaly = true
	// Software renderer on a claimed mobile device.
	case isSoftwareRenderer(rendererStr) && isMobile(ec):
		anomaly = true
	}
	if anomaly {
		ec.DeviceAgeAnomaly = true
		ec.Hit.StampFlag("_srv_deviceAgeAnomaly")
	}
	return nil
}

func isSoftwareRenderer(rendererStr string) bool {
	l := strings.ToLower(rendererStr)
	for _, tok := range softwareRenderers {
		if strings.Contains(l, tok) {
			return true
		}
	}
	return false
}

func modernBrowser(ec *Ctx) bool {
	return majorVersion(ec.BrowserVersion) >= 120
}

func modernOS(ec *Ctx) bool {
	major := majorVersion(ec.OSVersion)
	switch {
	case osIs(ec, "windows"):
		return major >= 11
	case osIs(ec, "mac"):
		return major >= 14
	case osIs(ec, "android"):
		return major >= 14
	case osIs(ec, "ios"):
		return major >= 17
	}
	return false
}

func majorVersion(v string) int {
	if i := strings.IndexByte(v, '.'); i > 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func zeroMouse(ec *Ctx) bool {
	moves, ok := ec.Params.Int("mouseMoves")
	return ok && moves == 0
}
