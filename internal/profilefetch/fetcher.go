// Package profilefetch extracts public profile metadata from social and
// web pages without authenticated APIs.
package profilefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/byerim/brandshield/internal/models"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBioLen  = 500
	maxNameLen = 200
	maxBody    = 2 << 20
)

// HTTPError reports a non-200 response from a profile page.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Fetcher retrieves and parses public profile pages.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Fetcher with a browser-like user agent.
func New(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "profilefetch"),
	}
}

// Fetch downloads a profile page and extracts username, display name,
// bio and follower count. Extraction rules depend on the platform the
// URL belongs to.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.ProfileData, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing profile URL: %w", err)
	}
	domain := strings.ToLower(u.Hostname())

	body, err := f.fetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page, err := parsePage(body)
	if err != nil {
		return nil, fmt.Errorf("parsing profile page: %w", err)
	}

	data := &models.ProfileData{Platform: platformForDomain(domain)}

	switch {
	case strings.Contains(domain, "twitter.com") || strings.Contains(domain, "x.com"):
		f.extractTwitter(page, u, data)
	case strings.Contains(domain, "instagram.com"):
		f.extractInstagram(page, u, data)
	case strings.Contains(domain, "tiktok.com"):
		f.extractTikTok(page, u, data)
	case strings.Contains(domain, "youtube.com"):
		f.extractYouTube(page, u, data)
	default:
		f.extractGeneric(page, data)
	}

	return data, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	return retry.DoWithData(
		func() ([]byte, error) {
			resp, err := f.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
			}
			return io.ReadAll(io.LimitReader(resp.Body, maxBody))
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying profile fetch", "attempt", n+1, "url", rawURL, "error", err)
		}),
	)
}

// isRetryableError returns true for transient failures worth a retry.
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

func platformForDomain(domain string) string {
	switch {
	case strings.Contains(domain, "twitter.com") || strings.Contains(domain, "x.com"):
		return "twitter"
	case strings.Contains(domain, "instagram.com"):
		return "instagram"
	case strings.Contains(domain, "tiktok.com"):
		return "tiktok"
	case strings.Contains(domain, "youtube.com"):
		return "youtube"
	case strings.Contains(domain, "facebook.com"):
		return "facebook"
	case strings.Contains(domain, "amazon"):
		return "amazon"
	case strings.Contains(domain, "ebay"):
		return "ebay"
	case strings.Contains(domain, "etsy.com"):
		return "etsy"
	default:
		return "web"
	}
}

// ogTitlePattern matches titles like "Display Name (@username) / X".
var ogTitlePattern = regexp.MustCompile(`^(.+?)\s*\(@?(\w+)\)`)

var followerPattern = regexp.MustCompile(`(?i)([\d,.]+[KMB]?)\s*Followers`)

// titleHandlePattern matches "<title>Display Name (@user..." pages.
var titleHandlePattern = regexp.MustCompile(`^(.+?)\s*\(@`)

// systemPaths are URL path segments that are not usernames.
var systemPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "stories": true,
	"explore": true, "search": true, "hashtag": true, "direct": true,
	"accounts": true, "watch": true, "channel": true, "c": true,
	"about": true, "legal": true, "privacy": true, "terms": true,
}

func usernameFromPath(u *url.URL) string {
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	first := strings.SplitN(path, "/", 2)[0]
	if systemPaths[strings.ToLower(first)] {
		return ""
	}
	return first
}

func (f *Fetcher) extractTwitter(page *pageMeta, u *url.URL, data *models.ProfileData) {
	data.Username = usernameFromPath(u)

	if title := page.property("og:title"); title != "" {
		if m := ogTitlePattern.FindStringSubmatch(title); m != nil {
			data.DisplayName = strings.TrimSpace(m[1])
			data.Username = m[2]
		}
	}
	if desc := page.property("og:description"); desc != "" {
		data.Bio = truncate(desc, maxBioLen)
	}
}

func (f *Fetcher) extractInstagram(page *pageMeta, u *url.URL, data *models.ProfileData) {
	data.Username = usernameFromPath(u)

	if title := page.property("og:title"); title != "" {
		if m := ogTitlePattern.FindStringSubmatch(title); m != nil {
			data.DisplayName = strings.TrimSpace(m[1])
		}
	}
	if desc := page.property("og:description"); desc != "" {
		data.Bio = truncate(desc, maxBioLen)
		if m := followerPattern.FindStringSubmatch(desc); m != nil {
			data.FollowerCount = parseCount(m[1])
		}
	}
}

func (f *Fetcher) extractTikTok(page *pageMeta, u *url.URL, data *models.ProfileData) {
	path := strings.Trim(u.Path, "/")
	if strings.HasPrefix(path, "@") {
		data.Username = strings.SplitN(path[1:], "/", 2)[0]
	}

	if desc := page.name("description"); desc != "" {
		data.Bio = truncate(desc, maxBioLen)
		if m := followerPattern.FindStringSubmatch(desc); m != nil {
			data.FollowerCount = parseCount(m[1])
		}
	}
	if page.title != "" {
		if m := titleHandlePattern.FindStringSubmatch(page.title); m != nil {
			data.DisplayName = strings.TrimSpace(m[1])
		}
	}
}

func (f *Fetcher) extractYouTube(page *pageMeta, u *url.URL, data *models.ProfileData) {
	path := strings.Trim(u.Path, "/")
	if path != "" {
		parts := strings.Split(path, "/")
		handle := parts[len(parts)-1]
		data.Username = strings.TrimPrefix(handle, "@")
	}

	if title := page.property("og:title"); title != "" {
		data.DisplayName = title
	}
	if desc := page.property("og:description"); desc != "" {
		data.Bio = truncate(desc, maxBioLen)
	}
}

func (f *Fetcher) extractGeneric(page *pageMeta, data *models.ProfileData) {
	if page.title != "" {
		data.DisplayName = truncate(strings.TrimSpace(page.title), maxNameLen)
	}
	desc := page.name("description")
	if desc == "" {
		desc = page.property("og:description")
	}
	if desc != "" {
		data.Bio = truncate(desc, maxBioLen)
	}
}

// parseCount converts display counts like "1.2K", "3.5M" or "1,234" to
// an integer. Unparseable input yields zero.
func parseCount(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}

	mult := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult, s = 1e3, s[:len(s)-1]
	case "M":
		mult, s = 1e6, s[:len(s)-1]
	case "B":
		mult, s = 1e9, s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
