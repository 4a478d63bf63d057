// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package device classifies user-agent strings into device type, browser,
// and operating system, with bot detection. Classification is deterministic
// and side-effect-free; results are cached by raw user-agent string in a
// bounded LRU since production traffic repeats a small set of agents.
package device

import (
	"regexp"
	"strings"

	"github.com/tomtom215/propertypulse/internal/cache"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Device types returned by Classify.
const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
)

// appIdentifier marks PropertyPulse's own native apps, which carry a short
// custom agent that would otherwise trip the bot heuristics.
const appIdentifier = "propertypulse-app"

// minAgentLength is the shortest user agent a real browser produces.
// Anything shorter is treated as a bot or tool.
const minAgentLength = 20

// botTokens are substrings identifying crawlers, scrapers, and automation
// tools. Matched case-insensitively against the whole agent string.
var botTokens = []string{
	"bot", "crawler", "spider", "scraper", "slurp",
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"java/", "okhttp", "axios", "node-fetch", "libwww",
	"headless", "phantomjs", "selenium", "puppeteer", "playwright",
	"facebookexternalhit", "whatsapp", "telegrambot", "discordbot",
	"pingdom", "uptimerobot", "statuscake", "newrelic", "datadog",
	"ahrefs", "semrush", "mj12", "dotbot", "petalbot",
	"lighthouse", "pagespeed", "gtmetrix",
}

// engineTokens identify real browser engines. An agent containing none of
// these is assumed to be automation even when no bot token matches.
var engineTokens = []string{
	"mozilla", "applewebkit", "gecko", "chrome", "safari",
	"firefox", "opera", "trident", "edg",
}

// tabletTokens take priority over mobile tokens: tablet agents routinely
// contain "Mobile" as well.
var tabletTokens = []string{
	"ipad", "tablet", "kindle", "silk", "playbook", "nexus 7", "nexus 9", "nexus 10", "sm-t",
}

var mobileTokens = []string{
	"mobile", "iphone", "ipod", "android", "blackberry", "windows phone", "opera mini",
}

// browserPattern pairs a detection token with a version-extraction regexp.
// Order matters: Edge and Opera agents contain "Chrome", and Chrome agents
// contain "Safari", so the most specific entries come first.
type browserPattern struct {
	name    string
	token   string
	version *regexp.Regexp
}

var browserPatterns = []browserPattern{
	{"Edge", "edg/", regexp.MustCompile(`(?i)edg/([\d.]+)`)},
	{"Edge", "edge/", regexp.MustCompile(`(?i)edge/([\d.]+)`)},
	{"Opera", "opr/", regexp.MustCompile(`(?i)opr/([\d.]+)`)},
	{"Opera", "opera", regexp.MustCompile(`(?i)opera[/ ]([\d.]+)`)},
	{"Samsung Internet", "samsungbrowser/", regexp.MustCompile(`(?i)samsungbrowser/([\d.]+)`)},
	{"Firefox", "firefox/", regexp.MustCompile(`(?i)firefox/([\d.]+)`)},
	{"Chrome", "crios/", regexp.MustCompile(`(?i)crios/([\d.]+)`)},
	{"Chrome", "chrome/", regexp.MustCompile(`(?i)chrome/([\d.]+)`)},
	{"Safari", "safari/", regexp.MustCompile(`(?i)version/([\d.]+)`)},
	{"Internet Explorer", "trident/", regexp.MustCompile(`(?i)rv:([\d.]+)`)},
	{"Internet Explorer", "msie", regexp.MustCompile(`(?i)msie ([\d.]+)`)},
}

// osPattern pairs a detection token with a version regexp; the version may
// be absent (Linux agents rarely carry one).
type osPattern struct {
	name    string
	token   string
	version *regexp.Regexp
}

var osPatterns = []osPattern{
	{"Windows", "windows nt", regexp.MustCompile(`(?i)windows nt ([\d.]+)`)},
	{"Windows Phone", "windows phone", regexp.MustCompile(`(?i)windows phone (?:os )?([\d.]+)`)},
	{"iOS", "iphone os", regexp.MustCompile(`(?i)iphone os ([\d_]+)`)},
	{"iOS", "cpu os", regexp.MustCompile(`(?i)cpu os ([\d_]+)`)},
	{"macOS", "mac os x", regexp.MustCompile(`(?i)mac os x ([\d_.]+)`)},
	{"Android", "android", regexp.MustCompile(`(?i)android ([\d.]+)`)},
	{"Chrome OS", "cros", regexp.MustCompile(`(?i)cros \S+ ([\d.]+)`)},
	{"Linux", "linux", nil},
}

// Config holds classifier tuning.
type Config struct {
	// CacheSize bounds the classification cache. Default 5000.
	CacheSize int
}

// Classifier parses user-agent strings. Safe for concurrent use.
type Classifier struct {
	results *cache.LRU[models.DeviceInfo]
}

// New constructs a Classifier.
func New(cfg Config) *Classifier {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 5000
	}
	return &Classifier{
		// Classification never goes stale, so entries carry no TTL and
		// only size-based eviction applies.
		results: cache.NewLRU[models.DeviceInfo](cfg.CacheSize, 0),
	}
}

// Classify parses userAgent into device, browser, and OS information.
func (c *Classifier) Classify(userAgent string) models.DeviceInfo {
	if info, ok := c.results.Get(userAgent); ok {
		return info
	}

	info := classify(userAgent)
	c.results.Add(userAgent, info)
	return info
}

func classify(userAgent string) models.DeviceInfo {
	lower := strings.ToLower(userAgent)

	if isBot(lower) {
		return models.DeviceInfo{IsBot: true, DeviceType: TypeDesktop}
	}

	info := models.DeviceInfo{DeviceType: deviceType(lower)}
	info.Browser, info.BrowserVersion = detectBrowser(lower)
	info.OS, info.OSVersion = detectOS(lower)
	return info
}

func isBot(lower string) bool {
	if strings.Contains(lower, appIdentifier) {
		return false
	}
	if len(lower) < minAgentLength {
		return true
	}
	for _, token := range botTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	for _, token := range engineTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	// No recognized engine token at all.
	return true
}

func deviceType(lower string) string {
	for _, token := range tabletTokens {
		if strings.Contains(lower, token) {
			return TypeTablet
		}
	}
	for _, token := range mobileTokens {
		if strings.Contains(lower, token) {
			return TypeMobile
		}
	}
	return TypeDesktop
}

func detectBrowser(lower string) (name, version string) {
	for _, p := range browserPatterns {
		if !strings.Contains(lower, p.token) {
			continue
		}
		if m := p.version.FindStringSubmatch(lower); m != nil {
			return p.name, m[1]
		}
		return p.name, ""
	}
	return "", ""
}

func detectOS(lower string) (name, version string) {
	for _, p := range osPatterns {
		if !strings.Contains(lower, p.token) {
			continue
		}
		if p.version == nil {
			return p.name, ""
		}
		if m := p.version.FindStringSubmatch(lower); m != nil {
			// Apple agents separate version components with underscores.
			return p.name, strings.ReplaceAll(m[1], "_", ".")
		}
		return p.name, ""
	}
	return "", ""
}
