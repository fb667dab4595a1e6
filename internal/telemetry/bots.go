package telemetry

import "strings"

var botSignatures = []string{
	"bot", "crawl", "spider", "slurp", "archiver",
	"facebookexternalhit", "embedly", "preview",
	"headlesschrome", "phantomjs", "puppeteer", "playwright", "selenium",
	"lighthouse", "pagespeed", "gtmetrix", "pingdom", "uptimerobot",
	"mediapartners-google", "adsbot",
	"curl/", "wget", "python-requests", "python-urllib", "go-http-client",
	"okhttp", "axios", "node-fetch", "java/", "libwww",
}

// IsBot reports whether ua looks like an automated client. An empty user
// agent counts as automated.
func IsBot(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
