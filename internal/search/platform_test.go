package search

import "testing"

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.instagram.com/byerim_official", "instagram"},
		{"https://instagram.com/p/abc123", "instagram"},
		{"https://www.tiktok.com/@fake", "tiktok"},
		{"https://twitter.com/fake", "twitter"},
		{"https://x.com/fake", "twitter"},
		{"https://www.youtube.com/@fake", "youtube"},
		{"https://youtu.be/abc", "youtube"},
		{"https://facebook.com/fake", "facebook"},
		{"https://fb.com/fake", "facebook"},
		{"https://www.amazon.co.uk/dp/B000", "amazon"},
		{"https://amazon.com/dp/B000", "amazon"},
		{"https://www.ebay.co.uk/itm/1", "ebay"},
		{"https://etsy.com/listing/1", "etsy"},
		{"https://fakeshop.myshopify.com/products/oil", "shopify"},
		{"https://teespring.com/fake", "merch"},
		{"https://www.redbubble.com/people/fake", "merch"},
		{"https://aliexpress.com/item/1", "aliexpress"},
		{"https://random-blog.example.org/post", "web"},
		{"not a url at all %%%", "web"},
		{"", "web"},
	}

	for _, tt := range tests {
		if got := DetectPlatform(tt.url); got != tt.expected {
			t.Errorf("DetectPlatform(%q) = %q, want %q", tt.url, got, tt.expected)
		}
	}
}
