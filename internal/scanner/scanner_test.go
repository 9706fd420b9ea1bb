package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/detector"
	"github.com/byerim/brandshield/internal/models"
	"github.com/byerim/brandshield/internal/notifications"
	"github.com/byerim/brandshield/internal/search"
)

type fakeStore struct {
	mu       sync.Mutex
	scans    map[uuid.UUID]*models.ScanRecord
	threats  []*models.Threat
	suspects []*models.SuspiciousAccount
	tracked  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scans:   make(map[uuid.UUID]*models.ScanRecord),
		tracked: make(map[string]bool),
	}
}

func (f *fakeStore) CreateScan(_ context.Context, scan *models.ScanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan.ID = uuid.New()
	scan.Status = models.ScanStatusRunning
	f.scans[scan.ID] = scan
	return nil
}

func (f *fakeStore) CompleteScan(_ context.Context, id uuid.UUID, items, threats int, secs float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan := f.scans[id]
	scan.Status = models.ScanStatusCompleted
	scan.ItemsScanned = items
	scan.ThreatsFound = threats
	scan.ExecutionSeconds = secs
	return nil
}

func (f *fakeStore) FailScan(_ context.Context, id uuid.UUID, msg string, secs float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan := f.scans[id]
	scan.Status = models.ScanStatusFailed
	scan.ErrorMessage = msg
	scan.ExecutionSeconds = secs
	return nil
}

func (f *fakeStore) URLTracked(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracked[url], nil
}

func (f *fakeStore) CreateThreat(_ context.Context, threat *models.Threat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	threat.ID = uuid.New()
	f.threats = append(f.threats, threat)
	f.tracked[threat.DetectedURL] = true
	return nil
}

func (f *fakeStore) CreateSuspect(_ context.Context, suspect *models.SuspiciousAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	suspect.ID = uuid.New()
	f.suspects = append(f.suspects, suspect)
	f.tracked[suspect.ProfileURL] = true
	return nil
}

type fakeProvider struct {
	results   []models.CandidateResult
	err       error
	failFirst int // fail this many leading calls, then serve results
	calls     int
}

func (f *fakeProvider) Search(_ context.Context, q search.Query) ([]models.CandidateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.failFirst {
		return nil, errors.New("search backend unavailable")
	}
	// Stamp query metadata the way the real provider does.
	out := make([]models.CandidateResult, len(f.results))
	for i, r := range f.results {
		r.QueryType = q.Type
		r.Brand = q.Brand
		out[i] = r
	}
	return out, nil
}

type fakeFetcher struct {
	profiles map[string]*models.ProfileData
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*models.ProfileData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[url]
	if !ok {
		return nil, errors.New("no such profile")
	}
	return p, nil
}

func testBrands() []models.BrandProfile {
	return []models.BrandProfile{{
		Key:             "@byerim",
		DisplayName:     "ByErim",
		PlatformHandles: map[string]string{"instagram": "byerim"},
		Keywords:        []string{"byerim"},
	}}
}

func newTestScanner(store *fakeStore, provider Provider, fetcher Fetcher) *Scanner {
	cfg := DefaultConfig()
	cfg.RateDelay = 0
	return New(cfg, store, provider, fetcher, detector.Default(), testBrands(), nil, nil)
}

func TestRunFullScan_CreatesThreatsAndSuspects(t *testing.T) {
	store := newFakeStore()
	fakeURL := "https://instagram.com/byerim_official"
	provider := &fakeProvider{results: []models.CandidateResult{{
		URL:      fakeURL,
		Title:    "ByErim (@byerim_official)",
		Snippet:  "Luxury hair oil official account",
		Platform: "instagram",
	}}}
	fetcher := &fakeFetcher{profiles: map[string]*models.ProfileData{
		fakeURL: {
			Platform:    "instagram",
			Username:    "byerim_official",
			DisplayName: "ByErim",
			Bio:         "Luxury hair oil",
		},
	}}

	s := newTestScanner(store, provider, fetcher)

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if summary.ThreatsFound != 1 {
		t.Fatalf("threats found = %d, want 1", summary.ThreatsFound)
	}
	if len(store.threats) != 1 {
		t.Fatalf("persisted threats = %d, want 1", len(store.threats))
	}

	threat := store.threats[0]
	if threat.ThreatType != models.ThreatImpersonation {
		t.Errorf("threat type = %v, want impersonation", threat.ThreatType)
	}
	if threat.InfringerUsername != "byerim_official" {
		t.Errorf("infringer username = %q", threat.InfringerUsername)
	}
	if threat.Confidence < 0.70 {
		t.Errorf("confidence = %v, want >= 0.70", threat.Confidence)
	}

	// Impersonation above the suspect floor with a fetched username
	// also records a suspicious account.
	if len(store.suspects) != 1 {
		t.Fatalf("persisted suspects = %d, want 1", len(store.suspects))
	}
	if store.suspects[0].RiskScore != threat.Confidence {
		t.Errorf("risk score = %v, want %v", store.suspects[0].RiskScore, threat.Confidence)
	}
	if len(store.suspects[0].DetectionReasons) == 0 {
		t.Error("expected detection reasons")
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %v, want completed", scan.Status)
	}
	if scan.ScanType != models.ScanTypeFull {
		t.Errorf("scan type = %v, want full_scan", scan.ScanType)
	}
}

func TestRunFullScan_SecondRunDedups(t *testing.T) {
	store := newFakeStore()
	fakeURL := "https://instagram.com/byerim_official"
	provider := &fakeProvider{results: []models.CandidateResult{{
		URL:      fakeURL,
		Platform: "instagram",
	}}}
	fetcher := &fakeFetcher{profiles: map[string]*models.ProfileData{
		fakeURL: {Platform: "instagram", Username: "byerim_official"},
	}}

	s := newTestScanner(store, provider, fetcher)

	if _, err := s.RunFullScan(context.Background(), "", ""); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	first := len(store.threats)

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if summary.ThreatsFound != 0 {
		t.Errorf("second scan found %d threats, want 0", summary.ThreatsFound)
	}
	if len(store.threats) != first {
		t.Errorf("second scan persisted new threats")
	}
}

func TestRunFullScan_EnrichmentFailureNonFatal(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{results: []models.CandidateResult{{
		URL:      "https://instagram.com/byerim_shop",
		Title:    "byerim_shop",
		Snippet:  "byerim products cheap",
		Platform: "instagram",
	}}}
	fetcher := &fakeFetcher{err: errors.New("blocked")}

	s := newTestScanner(store, provider, fetcher)

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %v, want completed despite fetch failures", scan.Status)
	}
	// Scoring ran on search metadata alone, username falls back to the
	// URL path.
	if len(store.threats) == 1 && store.threats[0].InfringerUsername != "byerim_shop" {
		t.Errorf("fallback username = %q, want byerim_shop", store.threats[0].InfringerUsername)
	}
}

func TestRunFullScan_UnknownBrandFailsRecord(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	s := newTestScanner(store, provider, &fakeFetcher{})

	summary, err := s.RunFullScan(context.Background(), "nosuchbrand", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusFailed {
		t.Errorf("scan status = %v, want failed", scan.Status)
	}
	if scan.ErrorMessage == "" {
		t.Error("expected error message on failed scan")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times for unknown brand", provider.calls)
	}
}

func TestRunFullScan_BrandKeyPrefixRetry(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	s := newTestScanner(store, provider, &fakeFetcher{})

	summary, err := s.RunFullScan(context.Background(), "byerim", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %v, want completed for bare brand key", scan.Status)
	}
	if scan.ScanType != models.ScanTypeBrand {
		t.Errorf("scan type = %v, want brand_scan", scan.ScanType)
	}
}

func TestRunFullScan_PlatformFilter(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{results: []models.CandidateResult{
		{URL: "https://etsy.com/listing/1", Platform: "etsy", Snippet: "byerim replica"},
		{URL: "https://instagram.com/byerim_fake", Platform: "instagram", Snippet: "byerim"},
	}}
	s := newTestScanner(store, provider, &fakeFetcher{err: errors.New("skip")})

	summary, err := s.RunFullScan(context.Background(), "@byerim", "etsy")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.ScanType != models.ScanTypePlatform {
		t.Errorf("scan type = %v, want platform_scan", scan.ScanType)
	}
	for _, threat := range store.threats {
		if threat.Platform != "etsy" {
			t.Errorf("threat platform = %q, want etsy only", threat.Platform)
		}
	}
}

func TestRunFullScan_QueryErrorSkipsToNextQuery(t *testing.T) {
	store := newFakeStore()
	fakeURL := "https://instagram.com/byerim_official"
	provider := &fakeProvider{
		failFirst: 1,
		results: []models.CandidateResult{{
			URL:      fakeURL,
			Title:    "ByErim (@byerim_official)",
			Snippet:  "Luxury hair oil official account",
			Platform: "instagram",
		}},
	}
	fetcher := &fakeFetcher{profiles: map[string]*models.ProfileData{
		fakeURL: {Platform: "instagram", Username: "byerim_official", DisplayName: "ByErim"},
	}}
	s := newTestScanner(store, provider, fetcher)

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Fatalf("scan status = %v, want completed despite a failed query", scan.Status)
	}
	if provider.calls < 2 {
		t.Fatalf("provider calls = %d, want the later queries to still run", provider.calls)
	}
	if len(store.threats) != 1 {
		t.Errorf("persisted threats = %d, want 1 from the surviving queries", len(store.threats))
	}
}

func TestRunFullScan_QuotaExhaustedCompletesPartial(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{err: search.ErrQuotaExceeded}
	s := newTestScanner(store, provider, &fakeFetcher{})

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %v, want completed on quota exhaustion", scan.Status)
	}
	if summary.ItemsScanned != 0 || summary.ThreatsFound != 0 {
		t.Errorf("summary = %+v, want zero counters", summary)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 after quota stop", provider.calls)
	}
}

func TestRunFullScan_SingleFlight(t *testing.T) {
	store := newFakeStore()
	s := newTestScanner(store, &fakeProvider{}, &fakeFetcher{})

	// Simulate a scan in progress for the brand.
	if !s.acquire("@byerim") {
		t.Fatal("acquire failed on idle brand")
	}
	defer s.release("@byerim")

	summary, err := s.RunFullScan(context.Background(), "@byerim", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusFailed {
		t.Errorf("scan status = %v, want failed while brand busy", scan.Status)
	}
}

func TestUsernameFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://instagram.com/byerim_fake", "byerim_fake"},
		{"https://tiktok.com/@byerim_fake/video/1", "byerim_fake"},
		{"https://instagram.com/explore/tags/x", ""},
		{"https://youtube.com/watch?v=abc", ""},
		{"https://example.com/", ""},
	}
	for _, tt := range tests {
		if got := usernameFromURL(tt.url); got != tt.expected {
			t.Errorf("usernameFromURL(%q) = %q, want %q", tt.url, got, tt.expected)
		}
	}
}

func TestRunFullScan_NoProviderCompletesEmpty(t *testing.T) {
	store := newFakeStore()
	s := newTestScanner(store, nil, &fakeFetcher{})

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if summary.ItemsScanned != 0 || summary.ThreatsFound != 0 {
		t.Errorf("summary = %+v, want zero counters", summary)
	}

	scan := store.scans[summary.ScanID]
	if scan == nil {
		t.Fatal("expected a scan record")
	}
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %q, want completed", scan.Status)
	}
}

func TestRunFullScan_NoBrandsCompletesEmpty(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{results: []models.CandidateResult{{
		URL:      "https://instagram.com/byerim_fake",
		Platform: "instagram",
	}}}
	cfg := DefaultConfig()
	cfg.RateDelay = 0
	s := New(cfg, store, provider, &fakeFetcher{}, detector.Default(), nil, nil, nil)

	summary, err := s.RunFullScan(context.Background(), "", "")
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if summary.ItemsScanned != 0 || summary.ThreatsFound != 0 {
		t.Errorf("summary = %+v, want zero counters", summary)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 with no brands configured", provider.calls)
	}

	scan := store.scans[summary.ScanID]
	if scan.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %q, want completed", scan.Status)
	}
}

type fakeNotifier struct {
	mu        sync.Mutex
	threats   []*models.Threat
	completes []notifications.ScanStats
	failures  []error
}

func (f *fakeNotifier) NotifyThreat(_ context.Context, threat *models.Threat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threats = append(f.threats, threat)
	return nil
}

func (f *fakeNotifier) NotifyScanComplete(_ context.Context, _ string, stats notifications.ScanStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, stats)
	return nil
}

func (f *fakeNotifier) NotifyScanFailed(_ context.Context, _ string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
	return nil
}

func TestRunFullScan_NotifiesThreatAndCompletion(t *testing.T) {
	store := newFakeStore()
	fakeURL := "https://instagram.com/byerim_official"
	provider := &fakeProvider{results: []models.CandidateResult{{
		URL:      fakeURL,
		Title:    "ByErim (@byerim_official)",
		Snippet:  "Luxury hair oil official account",
		Platform: "instagram",
	}}}
	fetcher := &fakeFetcher{profiles: map[string]*models.ProfileData{
		fakeURL: {Platform: "instagram", Username: "byerim_official", DisplayName: "ByErim", Bio: "Luxury hair oil"},
	}}
	notifier := &fakeNotifier{}
	cfg := DefaultConfig()
	cfg.RateDelay = 0
	s := New(cfg, store, provider, fetcher, detector.Default(), testBrands(), notifier, nil)

	if _, err := s.RunFullScan(context.Background(), "", ""); err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	if len(notifier.threats) != 1 {
		t.Fatalf("threat notifications = %d, want 1", len(notifier.threats))
	}
	if notifier.threats[0].Brand != "@byerim" {
		t.Errorf("notified brand = %q, want @byerim", notifier.threats[0].Brand)
	}
	if len(notifier.completes) != 1 {
		t.Fatalf("completion notifications = %d, want 1", len(notifier.completes))
	}
	if notifier.completes[0].ThreatsFound != 1 {
		t.Errorf("notified threats_found = %d, want 1", notifier.completes[0].ThreatsFound)
	}
	if len(notifier.failures) != 0 {
		t.Errorf("failure notifications = %d, want 0", len(notifier.failures))
	}
}

func TestRunFullScan_NotifiesFailure(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	cfg := DefaultConfig()
	cfg.RateDelay = 0
	s := New(cfg, store, &fakeProvider{}, &fakeFetcher{}, detector.Default(), testBrands(), notifier, nil)

	if _, err := s.RunFullScan(context.Background(), "@unknown", ""); err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	if len(notifier.failures) != 1 {
		t.Fatalf("failure notifications = %d, want 1", len(notifier.failures))
	}
	if len(notifier.completes) != 0 {
		t.Errorf("completion notifications = %d, want 0 for a failed scan", len(notifier.completes))
	}
}
