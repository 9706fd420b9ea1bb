package search

import (
	"net/url"
	"strings"
)

type domainRule struct {
	fragment string
	platform string
}

// Ordered so that more specific fragments win over generic ones.
var domainRules = []domainRule{
	{"instagram.com", "instagram"},
	{"tiktok.com", "tiktok"},
	{"twitter.com", "twitter"},
	{"x.com", "twitter"},
	{"youtube.com", "youtube"},
	{"youtu.be", "youtube"},
	{"facebook.com", "facebook"},
	{"fb.com", "facebook"},
	{"amazon.co.uk", "amazon"},
	{"amazon.com", "amazon"},
	{"ebay.co.uk", "ebay"},
	{"ebay.com", "ebay"},
	{"etsy.com", "etsy"},
	{"shopify.com", "shopify"},
	{"teespring.com", "merch"},
	{"redbubble.com", "merch"},
	{"aliexpress.com", "aliexpress"},
}

// DetectPlatform maps a result URL to a platform label. Unknown hosts
// fall back to "web".
func DetectPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "web"
	}
	domain := strings.ToLower(u.Hostname())
	for _, rule := range domainRules {
		if strings.Contains(domain, rule.fragment) {
			return rule.platform
		}
	}
	return "web"
}
