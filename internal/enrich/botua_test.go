package enrich

import (
	"context"
	"testing"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func TestBotUA(t *testing.T) {
	tests := []struct {
		ua   string
		bot  string
		want bool
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "Googlebot", true},
		{"Mozilla/5.0 AppleWebKit/537.36 (compatible; GPTBot/1.0)", "GPTBot", true},
		{"Mozilla/5.0 (compatible; ClaudeBot/1.0)", "ClaudeBot", true},
		{"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/130.0.0.0", "HeadlessChrome", true},
		{"curl/8.5.0", "curl", true},
		{"python-requests/2.31.0", "python-requests", true},
		{"SomeCo WebSpider 1.0", "generic spider", true},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/130.0.0.0 Safari/537.36", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		ec := NewCtx(&hit.Hit{UserAgent: tt.ua})
		if err := (BotUA{}).Enrich(context.Background(), ec); err != nil {
			t.Fatal(err)
		}
		if ec.KnownBot != tt.want || ec.BotName != tt.bot {
			t.Errorf("BotUA(%q) = (%v, %q), want (%v, %q)", tt.ua, ec.KnownBot, ec.BotName, tt.want, tt.bot)
		}
		if tt.want {
			p := hit.ParseParams(ec.Hit.QueryString)
			if !p.Has("_srv_knownBot") || p.Get("_srv_botName") != tt.bot {
				t.Errorf("stamps for %q: %q", tt.ua, ec.Hit.QueryString)
			}
		}
	}
}

func TestDeviceType(t *testing.T) {
	tests := []struct {
		ua     string
		family string
		want   string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iPhone", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "Pixel 8", "mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "iPad", "tablet"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "Other", "desktop"},
		{"Mozilla/5.0 (compatible; Googlebot/2.1)", "Spider", "bot"},
	}
	for _, tt := range tests {
		if got := deviceType(tt.ua, tt.family); got != tt.want {
			t.Errorf("deviceType(%q) = %q, want %q", tt.ua, got, tt.want)
		}
	}
}

func TestUAParse_ClientHintsOverride(t *testing.T) {
	u := NewUAParse()
	ec := NewCtx(&hit.Hit{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		HeadersJSON: `{"Sec-CH-UA-Platform":"\"Windows\"",` +
			`"Sec-CH-UA-Platform-Version":"\"15.0.0\"",` +
			`"Sec-CH-UA-Mobile":"?0"}`,
	})
	if err := u.Enrich(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	if ec.Browser != "Chrome" {
		t.Errorf("browser = %q", ec.Browser)
	}
	// Windows NT 10.0 is the frozen UA; the hint carries the real version.
	if ec.OS != "Windows" || ec.OSVersion != "15.0.0" {
		t.Errorf("os = %q %q", ec.OS, ec.OSVersion)
	}
	if ec.DeviceType != "desktop" {
		t.Errorf("device type = %q", ec.DeviceType)
	}
	p := hit.ParseParams(ec.Hit.QueryString)
	if p.Get("_srv_browser") != "Chrome" || p.Get("_srv_deviceType") != "desktop" {
		t.Errorf("stamps: %q", ec.Hit.QueryString)
	}
}

func TestUAParse_MobileHint(t *testing.T) {
	u := NewUAParse()
	ec := NewCtx(&hit.Hit{
		UserAgent:   "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 Chrome/130.0.0.0 Mobile Safari/537.36",
		HeadersJSON: `{"Sec-CH-UA-Mobile":"?1","Sec-CH-UA-Model":"\"Pixel 8\""}`,
	})
	if err := u.Enrich(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	if ec.DeviceType != "mobile" || ec.DeviceModel != "Pixel 8" {
		t.Errorf("device = %q %q", ec.DeviceType, ec.DeviceModel)
	}
}

func TestUAParse_EmptyUserAgent(t *testing.T) {
	u := NewUAParse()
	ec := NewCtx(&hit.Hit{})
	if err := u.Enrich(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	if ec.Hit.QueryString != "" {
		t.Errorf("empty UA must stamp nothing: %q", ec.Hit.QueryString)
	}
}
