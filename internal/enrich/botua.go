package enrich

import (
	"context"
	"strings"
)

// botCatalog maps lower-cased user-agent substrings to crawler names.
// Matching is first-hit over an ordered list so the more specific entries
// come first.
var botCatalog = []struct {
	token string
	name  string
}{
	{"googlebot", "Googlebot"},
	{"adsbot-google", "AdsBot"},
	{"apis-google", "Google APIs"},
	{"mediapartners-google", "Mediapartners"},
	{"bingbot", "Bingbot"},
	{"bingpreview", "BingPreview"},
	{"slurp", "Yahoo Slurp"},
	{"duckduckbot", "DuckDuckBot"},
	{"baiduspider", "Baiduspider"},
	{"yandexbot", "YandexBot"},
	{"sogou", "Sogou"},
	{"applebot", "Applebot"},
	{"gptbot", "GPTBot"},
	{"oai-searchbot", "OpenAI SearchBot"},
	{"chatgpt-user", "ChatGPT User"},
	{"claudebot", "ClaudeBot"},
	{"claude-web", "Claude Web"},
	{"anthropic-ai", "Anthropic"},
	{"perplexitybot", "PerplexityBot"},
	{"bytespider", "Bytespider"},
	{"ccbot", "CCBot"},
	{"facebookexternalhit", "Facebook"},
	{"facebot", "Facebook"},
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedInBot"},
	{"pinterestbot", "Pinterestbot"},
	{"slackbot", "Slackbot"},
	{"telegrambot", "TelegramBot"},
	{"whatsapp", "WhatsApp"},
	{"discordbot", "Discordbot"},
	{"ahrefsbot", "AhrefsBot"},
	{"semrushbot", "SemrushBot"},
	{"mj12bot", "MJ12bot"},
	{"dotbot", "DotBot"},
	{"rogerbot", "Rogerbot"},
	{"screaming frog", "Screaming Frog"},
	{"uptimerobot", "UptimeRobot"},
	{"pingdom", "Pingdom"},
	{"headlesschrome", "HeadlessChrome"},
	{"phantomjs", "PhantomJS"},
	{"electron", "Electron"},
	{"selenium", "Selenium"},
	{"puppeteer", "Puppeteer"},
	{"playwright", "Playwright"},
	{"python-requests", "python-requests"},
	{"python-urllib", "python-urllib"},
	{"go-http-client", "Go http client"},
	{"curl/", "curl"},
	{"wget/", "wget"},
	{"java/", "Java"},
	{"okhttp", "okhttp"},
	{"scrapy", "Scrapy"},
	{"httpclient", "HttpClient"},
	{"libwww", "libwww"},
	{"crawler", "generic crawler"},
	{"spider", "generic spider"},
}

// BotUA matches the user-agent against the crawler catalog. Step 1 of
// tier 1.
type BotUA struct{}

func (BotUA) Enrich(_ context.Context, ec *Ctx) error {
	ua := strings.ToLower(ec.Hit.UserAgent)
	if ua == "" {
		return nil
	}
	for _, b := range botCatalog {
		if strings.Contains(ua, b.token) {
			ec.KnownBot = true
			ec.BotName = b.name
			ec.Hit.StampFlag("_srv_knownBot")
			ec.Hit.Stamp("_srv_botName", b.name)
			return nil
		}
	}
	return nil
}
