// Package scanner orchestrates a brand scan: planned searches, dedup,
// profile enrichment, scoring and persistence.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/detector"
	"github.com/byerim/brandshield/internal/models"
	"github.com/byerim/brandshield/internal/notifications"
	"github.com/byerim/brandshield/internal/search"
)

// Store is the persistence surface a scan needs.
type Store interface {
	CreateScan(ctx context.Context, scan *models.ScanRecord) error
	CompleteScan(ctx context.Context, id uuid.UUID, itemsScanned, threatsFound int, execSeconds float64) error
	FailScan(ctx context.Context, id uuid.UUID, message string, execSeconds float64) error
	URLTracked(ctx context.Context, url string) (bool, error)
	CreateThreat(ctx context.Context, threat *models.Threat) error
	CreateSuspect(ctx context.Context, suspect *models.SuspiciousAccount) error
}

// Provider executes one planned search query.
type Provider interface {
	Search(ctx context.Context, q search.Query) ([]models.CandidateResult, error)
}

// Fetcher enriches a social URL with public profile data.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.ProfileData, error)
}

// Notifier pushes scan lifecycle events to the configured channels.
// Delivery failures are logged, never fatal.
type Notifier interface {
	NotifyThreat(ctx context.Context, threat *models.Threat) error
	NotifyScanComplete(ctx context.Context, brand string, stats notifications.ScanStats) error
	NotifyScanFailed(ctx context.Context, brand string, err error) error
}

type Config struct {
	// RateDelay is the pause between provider queries.
	RateDelay time.Duration
	// ThreatFloor is the minimum confidence to persist a threat.
	ThreatFloor float64
	// SuspectFloor is the minimum confidence to also record a
	// suspicious account for impersonation hits.
	SuspectFloor float64
	// SingleFlight rejects a scan while another is running for the
	// same brand.
	SingleFlight bool
}

func DefaultConfig() Config {
	return Config{
		RateDelay:    2 * time.Second,
		ThreatFloor:  0.35,
		SuspectFloor: 0.50,
		SingleFlight: true,
	}
}

// ErrScanInProgress is returned when single-flight is on and a brand is
// already being scanned.
var ErrScanInProgress = fmt.Errorf("scan already in progress")

type Scanner struct {
	config   Config
	store    Store
	provider Provider
	fetcher  Fetcher
	detector *detector.Detector
	brands   []models.BrandProfile
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(cfg Config, store Store, provider Provider, fetcher Fetcher, det *detector.Detector, brands []models.BrandProfile, notifier Notifier, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		config:   cfg,
		store:    store,
		provider: provider,
		fetcher:  fetcher,
		detector: det,
		brands:   brands,
		notifier: notifier,
		logger:   logger.With("component", "scanner"),
		inFlight: make(map[string]bool),
	}
}

// Summary is the outcome of one scan run.
type Summary struct {
	ScanID       uuid.UUID `json:"scan_id"`
	ItemsScanned int       `json:"items_scanned"`
	ThreatsFound int       `json:"threats_found"`
}

// RunFullScan scans all brands, or a single brand when brand is
// non-empty, optionally narrowed to one platform. Every run writes a
// scan_history row; failures are recorded there, not returned, except
// when the scan record itself cannot be created.
func (s *Scanner) RunFullScan(ctx context.Context, brand, platform string) (*Summary, error) {
	scanType := models.ScanTypeFull
	if brand != "" && platform != "" {
		scanType = models.ScanTypePlatform
	} else if brand != "" {
		scanType = models.ScanTypeBrand
	}

	scan := &models.ScanRecord{
		ScanType: scanType,
		Brand:    brand,
		Platform: platform,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("creating scan record: %w", err)
	}
	start := time.Now()

	// No provider means no search credentials; record an empty run.
	if s.provider == nil {
		s.logger.Warn("no search provider configured, scan finds nothing", "scan_id", scan.ID)
		if err := s.store.CompleteScan(ctx, scan.ID, 0, 0, time.Since(start).Seconds()); err != nil {
			s.logger.Error("recording scan completion", "scan_id", scan.ID, "error", err)
		}
		return &Summary{ScanID: scan.ID}, nil
	}

	targets, err := s.resolveBrands(brand)
	if err != nil {
		s.logger.Error("scan failed", "scan_id", scan.ID, "error", err)
		if ferr := s.store.FailScan(ctx, scan.ID, err.Error(), time.Since(start).Seconds()); ferr != nil {
			s.logger.Error("recording scan failure", "scan_id", scan.ID, "error", ferr)
		}
		s.notifyFailed(ctx, brand, err)
		return &Summary{ScanID: scan.ID}, nil
	}

	totalItems := 0
	totalThreats := 0
	var stats notifications.ScanStats
	var scanErr error

	for i := range targets {
		if s.config.SingleFlight {
			if !s.acquire(targets[i].Key) {
				if brand != "" {
					scanErr = fmt.Errorf("%w for brand %s", ErrScanInProgress, targets[i].Key)
					break
				}
				s.logger.Warn("skipping brand, scan already in progress", "brand", targets[i].Key)
				continue
			}
		}
		items, threats, err := s.scanBrand(ctx, &targets[i], platform, &stats)
		if s.config.SingleFlight {
			s.release(targets[i].Key)
		}
		totalItems += items
		totalThreats += threats
		if err != nil {
			// Quota exhaustion ends the run early but what was found
			// still counts as a completed scan.
			if errors.Is(err, search.ErrQuotaExceeded) {
				s.logger.Warn("daily search quota exhausted, ending scan early", "scan_id", scan.ID)
				break
			}
			scanErr = err
			break
		}
	}

	elapsed := time.Since(start).Seconds()
	if scanErr != nil {
		s.logger.Error("scan failed", "scan_id", scan.ID, "error", scanErr)
		if err := s.store.FailScan(ctx, scan.ID, scanErr.Error(), elapsed); err != nil {
			s.logger.Error("recording scan failure", "scan_id", scan.ID, "error", err)
		}
		s.notifyFailed(ctx, brand, scanErr)
	} else {
		if err := s.store.CompleteScan(ctx, scan.ID, totalItems, totalThreats, elapsed); err != nil {
			s.logger.Error("recording scan completion", "scan_id", scan.ID, "error", err)
		}
		s.logger.Info("scan complete",
			"scan_id", scan.ID,
			"items_scanned", totalItems,
			"threats_found", totalThreats,
			"elapsed_seconds", elapsed,
		)
		if s.notifier != nil {
			stats.ItemsScanned = totalItems
			stats.ThreatsFound = totalThreats
			stats.Duration = time.Since(start)
			if err := s.notifier.NotifyScanComplete(ctx, brand, stats); err != nil {
				s.logger.Warn("scan completion notification failed", "scan_id", scan.ID, "error", err)
			}
		}
	}

	return &Summary{
		ScanID:       scan.ID,
		ItemsScanned: totalItems,
		ThreatsFound: totalThreats,
	}, nil
}

func (s *Scanner) resolveBrands(brand string) ([]models.BrandProfile, error) {
	if brand == "" {
		return s.brands, nil
	}
	for _, b := range s.brands {
		if b.Key == brand {
			return []models.BrandProfile{b}, nil
		}
	}
	// Retry with @ prefix, brands are keyed by handle
	if !strings.HasPrefix(brand, "@") {
		key := "@" + brand
		for _, b := range s.brands {
			if b.Key == key {
				return []models.BrandProfile{b}, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown brand: %s", brand)
}

func (s *Scanner) acquire(brand string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[brand] {
		return false
	}
	s.inFlight[brand] = true
	return true
}

func (s *Scanner) release(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, brand)
}

// scanBrand runs all planned queries for one brand and persists what
// clears the confidence floors. A failed query is skipped, not fatal;
// quota exhaustion stops the remaining queries. Storage errors abort
// the scan; enrichment failures do not.
func (s *Scanner) scanBrand(ctx context.Context, brand *models.BrandProfile, platform string, stats *notifications.ScanStats) (int, int, error) {
	s.logger.Info("scanning brand", "brand", brand.Key)

	queries := search.BuildQueries(brand)
	seen := make(map[string]bool)
	itemsScanned := 0
	threatsFound := 0

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return itemsScanned, threatsFound, err
		}

		results, err := s.provider.Search(ctx, q)
		if err != nil {
			if errors.Is(err, search.ErrQuotaExceeded) {
				s.logger.Warn("daily search quota exhausted", "brand", brand.Key)
				return itemsScanned, threatsFound, err
			}
			s.logger.Warn("search query failed, skipping",
				"brand", brand.Key,
				"query", q.Text,
				"error", err,
			)
			results = nil
		}

		for _, result := range results {
			if seen[result.URL] {
				continue
			}
			seen[result.URL] = true

			if platform != "" && result.Platform != platform {
				continue
			}
			itemsScanned++

			created, err := s.processResult(ctx, brand, result, stats)
			if err != nil {
				return itemsScanned, threatsFound, err
			}
			if created {
				threatsFound++
			}
		}

		if i < len(queries)-1 && s.config.RateDelay > 0 {
			select {
			case <-time.After(s.config.RateDelay):
			case <-ctx.Done():
				return itemsScanned, threatsFound, ctx.Err()
			}
		}
	}

	s.logger.Info("brand scan complete",
		"brand", brand.Key,
		"items_scanned", itemsScanned,
		"threats_found", threatsFound,
	)
	return itemsScanned, threatsFound, nil
}

func (s *Scanner) notifyFailed(ctx context.Context, brand string, err error) {
	if s.notifier == nil {
		return
	}
	if nerr := s.notifier.NotifyScanFailed(ctx, brand, err); nerr != nil {
		s.logger.Warn("scan failure notification failed", "error", nerr)
	}
}

func (s *Scanner) processResult(ctx context.Context, brand *models.BrandProfile, result models.CandidateResult, stats *notifications.ScanStats) (bool, error) {
	tracked, err := s.store.URLTracked(ctx, result.URL)
	if err != nil {
		return false, fmt.Errorf("checking tracked URL: %w", err)
	}
	if tracked {
		s.logger.Debug("skipping already tracked URL", "url", result.URL)
		return false, nil
	}

	var profile *models.ProfileData
	if models.IsSocialPlatform(result.Platform) && s.fetcher != nil {
		profile, err = s.fetcher.Fetch(ctx, result.URL)
		if err != nil {
			s.logger.Warn("profile fetch failed", "url", result.URL, "error", err)
			profile = nil
		}
	}

	score := s.detector.Score(result, brand, profile)
	if score.Confidence < s.config.ThreatFloor {
		return false, nil
	}

	username := ""
	if profile != nil {
		username = profile.Username
	}
	if username == "" {
		username = usernameFromURL(result.URL)
	}

	evidence := make(models.JSONB, len(score.Evidence))
	for k, v := range score.Evidence {
		evidence[k] = v
	}

	threat := &models.Threat{
		Brand:             brand.Key,
		ThreatType:        score.ThreatType,
		Severity:          score.Severity,
		Platform:          result.Platform,
		DetectedURL:       result.URL,
		InfringerUsername: username,
		Confidence:        score.Confidence,
		Evidence:          evidence,
	}
	if err := s.store.CreateThreat(ctx, threat); err != nil {
		return false, fmt.Errorf("creating threat: %w", err)
	}
	s.logger.Info("threat detected",
		"brand", brand.Key,
		"url", result.URL,
		"severity", score.Severity,
		"confidence", score.Confidence,
	)

	switch score.Severity {
	case models.SeverityCritical:
		stats.CriticalThreats++
	case models.SeverityHigh:
		stats.HighThreats++
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyThreat(ctx, threat); err != nil {
			s.logger.Warn("threat notification failed", "url", result.URL, "error", err)
		}
	}

	if score.ThreatType == models.ThreatImpersonation &&
		score.Confidence >= s.config.SuspectFloor &&
		profile != nil && profile.Username != "" {
		suspect := &models.SuspiciousAccount{
			Brand:            brand.Key,
			Platform:         suspectPlatform(profile, result),
			Username:         profile.Username,
			ProfileURL:       result.URL,
			DisplayName:      profile.DisplayName,
			BioText:          profile.Bio,
			FollowerCount:    profile.FollowerCount,
			RiskScore:        score.Confidence,
			DetectionReasons: detectionReasons(score.Evidence),
		}
		if err := s.store.CreateSuspect(ctx, suspect); err != nil {
			return true, fmt.Errorf("creating suspect: %w", err)
		}
		s.logger.Info("suspicious account recorded",
			"brand", brand.Key,
			"username", profile.Username,
			"platform", suspect.Platform,
		)
	}

	return true, nil
}

func suspectPlatform(profile *models.ProfileData, result models.CandidateResult) string {
	if profile.Platform != "" {
		return profile.Platform
	}
	if result.Platform != "" {
		return result.Platform
	}
	return "web"
}

// detectionReasons turns strong evidence components into reader-facing
// red flags.
func detectionReasons(evidence map[string]float64) models.StringArray {
	var reasons models.StringArray
	if v := evidence["username_match"]; v > 0.5 {
		reasons = append(reasons, fmt.Sprintf("Username similarity: %.0f%%", v*100))
	}
	if v := evidence["bio_similarity"]; v > 0.5 {
		reasons = append(reasons, fmt.Sprintf("Bio similarity: %.0f%%", v*100))
	}
	if v := evidence["name_match"]; v > 0.5 {
		reasons = append(reasons, fmt.Sprintf("Display name match: %.0f%%", v*100))
	}
	return reasons
}

// skipSegments are path prefixes that never identify an account.
var skipSegments = map[string]bool{
	"search": true, "explore": true, "hashtag": true, "p": true,
	"reel": true, "watch": true, "channel": true, "c": true,
}

func usernameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	username := strings.SplitN(path, "/", 2)[0]
	username = strings.TrimPrefix(username, "@")
	if skipSegments[strings.ToLower(username)] {
		return ""
	}
	return username
}
