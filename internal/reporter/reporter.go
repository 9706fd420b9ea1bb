// Package reporter builds and sends the weekly threat digest.
package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/models"
)

// actionable thresholds: new threats worth a takedown recommendation.
const actionableConfidence = 0.75

// Store is the read surface the reporter needs, plus the scan row the
// report run leaves behind.
type Store interface {
	ThreatsSince(ctx context.Context, since time.Time) ([]models.Threat, error)
	ActiveThreats(ctx context.Context) ([]models.Threat, error)
	CountThreatsByStatus(ctx context.Context, status models.ThreatStatus) (int, error)
	NoticesSince(ctx context.Context, since time.Time) ([]models.DMCANotice, error)
	SuspectedAccounts(ctx context.Context) ([]models.SuspiciousAccount, error)
	ActiveSeverityCounts(ctx context.Context) (map[models.Severity]int, error)
	ActiveBrandCounts(ctx context.Context) (map[string]int, error)
	ScansSince(ctx context.Context, since time.Time) ([]models.ScanRecord, error)
	CreateScan(ctx context.Context, scan *models.ScanRecord) error
	CompleteScan(ctx context.Context, id uuid.UUID, itemsScanned, threatsFound int, execSeconds float64) error
}

// Mailer delivers the rendered report.
type Mailer interface {
	SendEmail(subject, htmlBody string) error
	EmailEnabled() bool
}

type Reporter struct {
	store  Store
	mailer Mailer
	brands []models.BrandProfile
	logger *slog.Logger
}

func New(store Store, mailer Mailer, brands []models.BrandProfile, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		store:  store,
		mailer: mailer,
		brands: brands,
		logger: logger.With("component", "reporter"),
	}
}

// WeeklyData is everything the report template renders.
type WeeklyData struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	NewThreats    []models.Threat
	ActiveThreats []models.Threat
	Actionable    []models.Threat
	IgnoredCount  int
	NewNotices    []models.DMCANotice
	Suspects      []models.SuspiciousAccount
	Severity      map[models.Severity]int
	Brands        map[string]int
	Scans         []models.ScanRecord
}

// GatherWeeklyData collects the last 7 days of activity.
func (r *Reporter) GatherWeeklyData(ctx context.Context) (*WeeklyData, error) {
	now := time.Now().UTC()
	weekAgo := now.Add(-7 * 24 * time.Hour)

	data := &WeeklyData{
		PeriodStart: weekAgo,
		PeriodEnd:   now,
	}

	var err error
	if data.NewThreats, err = r.store.ThreatsSince(ctx, weekAgo); err != nil {
		return nil, fmt.Errorf("loading new threats: %w", err)
	}
	if data.ActiveThreats, err = r.store.ActiveThreats(ctx); err != nil {
		return nil, fmt.Errorf("loading active threats: %w", err)
	}
	if data.IgnoredCount, err = r.store.CountThreatsByStatus(ctx, models.ThreatStatusIgnored); err != nil {
		return nil, fmt.Errorf("counting ignored threats: %w", err)
	}
	if data.NewNotices, err = r.store.NoticesSince(ctx, weekAgo); err != nil {
		return nil, fmt.Errorf("loading notices: %w", err)
	}
	if data.Suspects, err = r.store.SuspectedAccounts(ctx); err != nil {
		return nil, fmt.Errorf("loading suspects: %w", err)
	}
	if data.Severity, err = r.store.ActiveSeverityCounts(ctx); err != nil {
		return nil, fmt.Errorf("loading severity counts: %w", err)
	}
	if data.Brands, err = r.store.ActiveBrandCounts(ctx); err != nil {
		return nil, fmt.Errorf("loading brand counts: %w", err)
	}
	if data.Scans, err = r.store.ScansSince(ctx, weekAgo); err != nil {
		return nil, fmt.Errorf("loading scan activity: %w", err)
	}

	data.Actionable = actionableThreats(data.ActiveThreats)
	return data, nil
}

// actionableThreats selects new, high-or-critical, high-confidence
// threats recommended for takedown.
func actionableThreats(active []models.Threat) []models.Threat {
	var out []models.Threat
	for _, t := range active {
		if t.Status != models.ThreatStatusNew {
			continue
		}
		if t.Severity != models.SeverityCritical && t.Severity != models.SeverityHigh {
			continue
		}
		if t.Confidence < actionableConfidence {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SendWeeklyReport gathers the week's data, emails the digest and
// records a weekly_report scan row. Without a working email channel the
// report is skipped, not failed.
func (r *Reporter) SendWeeklyReport(ctx context.Context) error {
	scan := &models.ScanRecord{ScanType: models.ScanTypeWeeklyReport}
	if err := r.store.CreateScan(ctx, scan); err != nil {
		return fmt.Errorf("creating report scan record: %w", err)
	}
	start := time.Now()

	data, err := r.GatherWeeklyData(ctx)
	if err != nil {
		return err
	}

	if r.mailer == nil || !r.mailer.EmailEnabled() {
		r.logger.Warn("weekly report skipped, email not configured")
		if err := r.store.CompleteScan(ctx, scan.ID, len(data.ActiveThreats), len(data.NewThreats), time.Since(start).Seconds()); err != nil {
			r.logger.Error("recording report scan", "error", err)
		}
		return nil
	}

	body, err := BuildReportHTML(data, r.brands)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}

	subject := fmt.Sprintf("Brand Shield Weekly Report - %s", time.Now().UTC().Format("02 January 2006"))
	if err := r.mailer.SendEmail(subject, body); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}

	// items = active threats at report time, threats = new this week
	if err := r.store.CompleteScan(ctx, scan.ID, len(data.ActiveThreats), len(data.NewThreats), time.Since(start).Seconds()); err != nil {
		r.logger.Error("recording report scan", "error", err)
	}

	r.logger.Info("weekly report sent",
		"new_threats", len(data.NewThreats),
		"active_threats", len(data.ActiveThreats),
		"actionable", len(data.Actionable),
	)
	return nil
}
