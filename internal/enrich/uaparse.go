package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
)

// UAParse derives browser, OS and device from the user-agent string. Step 2
// of tier 1. Pass one is the uap-go regex catalog; pass two refines the
// result from client hints when the browser sent them, since hints survive
// user-agent reduction.
type UAParse struct {
	parser *uaparser.Parser
}

func NewUAParse() *UAParse {
	return &UAParse{parser: uaparser.NewFromSaved()}
}

func (u *UAParse) Enrich(_ context.Context, ec *Ctx) error {
	ua := ec.Hit.UserAgent
	if ua == "" {
		return nil
	}

	client := u.parser.Parse(ua)
	ec.Browser = client.UserAgent.Family
	ec.BrowserVersion = joinVersion(client.UserAgent.Major, client.UserAgent.Minor)
	ec.OS = client.Os.Family
	ec.OSVersion = joinVersion(client.Os.Major, client.Os.Minor)
	ec.DeviceBrand = client.Device.Brand
	ec.DeviceModel = client.Device.Model
	ec.DeviceType = deviceType(ua, client.Device.Family)

	// Second pass: client hints override what the reduced UA hides.
	var headers map[string]string
	if err := json.Unmarshal([]byte(ec.Hit.HeadersJSON), &headers); err == nil {
		if p := strings.Trim(headers["Sec-CH-UA-Platform"], `"`); p != "" {
			ec.OS = p
		}
		if v := strings.Trim(headers["Sec-CH-UA-Platform-Version"], `"`); v != "" {
			ec.OSVersion = v
		}
		if m := strings.Trim(headers["Sec-CH-UA-Model"], `"`); m != "" {
			ec.DeviceModel = m
		}
		if headers["Sec-CH-UA-Mobile"] == "?1" {
			ec.DeviceType = "mobile"
		}
	}

	if ec.Browser != "" && ec.Browser != "Other" {
		ec.Hit.Stamp("_srv_browser", ec.Browser)
		ec.Hit.Stamp("_srv_browserVer", ec.BrowserVersion)
	}
	if ec.OS != "" && ec.OS != "Other" {
		ec.Hit.Stamp("_srv_os", ec.OS)
		ec.Hit.Stamp("_srv_osVer", ec.OSVersion)
	}
	ec.Hit.Stamp("_srv_deviceType", ec.DeviceType)
	if ec.DeviceModel != "" {
		ec.Hit.Stamp("_srv_deviceModel", ec.DeviceModel)
	}
	if ec.DeviceBrand != "" {
		ec.Hit.Stamp("_srv_deviceBrand", ec.DeviceBrand)
	}
	return nil
}

func joinVersion(major, minor string) string {
	if major == "" {
		return ""
	}
	if minor == "" {
		return major
	}
	return major + "." + minor
}

func deviceType(ua, deviceFamily string) string {
	l := strings.ToLower(ua)
	switch {
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		return "tablet"
	case strings.Contains(l, "mobi") || strings.Contains(l, "android") || strings.Contains(l, "iphone"):
		return "mobile"
	case deviceFamily == "Spider":
		return "bot"
	default:
		return "desktop"
	}
}
