package reporter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/models"
)

type fakeStore struct {
	newThreats    []models.Threat
	activeThreats []models.Threat
	ignored       int
	notices       []models.DMCANotice
	suspects      []models.SuspiciousAccount
	severity      map[models.Severity]int
	brands        map[string]int
	scans         []models.ScanRecord

	createdScan   *models.ScanRecord
	completedScan bool
	items         int
	threats       int
}

func (f *fakeStore) ThreatsSince(_ context.Context, _ time.Time) ([]models.Threat, error) {
	return f.newThreats, nil
}
func (f *fakeStore) ActiveThreats(_ context.Context) ([]models.Threat, error) {
	return f.activeThreats, nil
}
func (f *fakeStore) CountThreatsByStatus(_ context.Context, _ models.ThreatStatus) (int, error) {
	return f.ignored, nil
}
func (f *fakeStore) NoticesSince(_ context.Context, _ time.Time) ([]models.DMCANotice, error) {
	return f.notices, nil
}
func (f *fakeStore) SuspectedAccounts(_ context.Context) ([]models.SuspiciousAccount, error) {
	return f.suspects, nil
}
func (f *fakeStore) ActiveSeverityCounts(_ context.Context) (map[models.Severity]int, error) {
	return f.severity, nil
}
func (f *fakeStore) ActiveBrandCounts(_ context.Context) (map[string]int, error) {
	return f.brands, nil
}
func (f *fakeStore) ScansSince(_ context.Context, _ time.Time) ([]models.ScanRecord, error) {
	return f.scans, nil
}
func (f *fakeStore) CreateScan(_ context.Context, scan *models.ScanRecord) error {
	scan.ID = uuid.New()
	f.createdScan = scan
	return nil
}
func (f *fakeStore) CompleteScan(_ context.Context, _ uuid.UUID, items, threats int, _ float64) error {
	f.completedScan = true
	f.items = items
	f.threats = threats
	return nil
}

type fakeMailer struct {
	enabled bool
	subject string
	body    string
	sends   int
}

func (f *fakeMailer) SendEmail(subject, body string) error {
	f.sends++
	f.subject = subject
	f.body = body
	return nil
}

func (f *fakeMailer) EmailEnabled() bool { return f.enabled }

func reportBrands() []models.BrandProfile {
	return []models.BrandProfile{
		{Key: "@erim", DisplayName: "Erim Kaur"},
		{Key: "@byerim", DisplayName: "ByErim"},
	}
}

func seededStore() *fakeStore {
	return &fakeStore{
		newThreats: []models.Threat{
			{
				Brand: "@byerim", ThreatType: models.ThreatImpersonation,
				Severity: models.SeverityHigh, Platform: "instagram",
				InfringerUsername: "byerim_fake", Confidence: 0.82,
				Status: models.ThreatStatusNew,
			},
		},
		activeThreats: []models.Threat{
			{
				Brand: "@byerim", Severity: models.SeverityCritical,
				Platform: "etsy", InfringerUsername: "fakeshop",
				Confidence: 0.93, Status: models.ThreatStatusNew,
			},
			{
				Brand: "@erim", Severity: models.SeverityHigh,
				Platform: "tiktok", InfringerUsername: "lowconf",
				Confidence: 0.6, Status: models.ThreatStatusNew,
			},
			{
				Brand: "@erim", Severity: models.SeverityCritical,
				Platform: "twitter", InfringerUsername: "reported_already",
				Confidence: 0.95, Status: models.ThreatStatusReported,
			},
		},
		ignored: 2,
		severity: map[models.Severity]int{
			models.SeverityCritical: 2,
			models.SeverityHigh:     1,
		},
		brands: map[string]int{"@byerim": 2, "@erim": 1},
		suspects: []models.SuspiciousAccount{
			{Brand: "@byerim", Platform: "instagram", Username: "byerim_backup", RiskScore: 0.7},
		},
		scans: []models.ScanRecord{{ScanType: models.ScanTypeFull}},
	}
}

func TestActionableThreats(t *testing.T) {
	store := seededStore()
	got := actionableThreats(store.activeThreats)

	// Only new + critical/high + confidence >= 0.75 qualify.
	if len(got) != 1 {
		t.Fatalf("actionable = %d, want 1", len(got))
	}
	if got[0].InfringerUsername != "fakeshop" {
		t.Errorf("actionable threat = %q, want fakeshop", got[0].InfringerUsername)
	}
}

func TestSendWeeklyReport(t *testing.T) {
	store := seededStore()
	mailer := &fakeMailer{enabled: true}
	r := New(store, mailer, reportBrands(), nil)

	if err := r.SendWeeklyReport(context.Background()); err != nil {
		t.Fatalf("SendWeeklyReport: %v", err)
	}

	if mailer.sends != 1 {
		t.Fatalf("emails sent = %d, want 1", mailer.sends)
	}
	if !strings.Contains(mailer.subject, "Brand Shield Weekly Report") {
		t.Errorf("subject = %q", mailer.subject)
	}
	for _, want := range []string{"byerim_fake", "fakeshop", "byerim_backup", "@erim &amp; @byerim"} {
		if !strings.Contains(mailer.body, want) {
			t.Errorf("report body missing %q", want)
		}
	}

	// Report leaves a weekly_report scan row behind.
	if store.createdScan == nil || store.createdScan.ScanType != models.ScanTypeWeeklyReport {
		t.Error("expected a weekly_report scan record")
	}
	if !store.completedScan {
		t.Error("expected scan record completed")
	}
	if store.items != len(store.activeThreats) || store.threats != len(store.newThreats) {
		t.Errorf("scan counters = %d/%d, want %d/%d",
			store.items, store.threats, len(store.activeThreats), len(store.newThreats))
	}
}

func TestSendWeeklyReport_EmailDisabledSkips(t *testing.T) {
	store := seededStore()
	mailer := &fakeMailer{enabled: false}
	r := New(store, mailer, reportBrands(), nil)

	if err := r.SendWeeklyReport(context.Background()); err != nil {
		t.Fatalf("SendWeeklyReport: %v", err)
	}
	if mailer.sends != 0 {
		t.Errorf("emails sent = %d, want 0", mailer.sends)
	}
	if !store.completedScan {
		t.Error("expected scan record completed even when skipped")
	}
}

func TestBuildReportHTML_Escaping(t *testing.T) {
	data := &WeeklyData{
		PeriodEnd: time.Now(),
		NewThreats: []models.Threat{{
			Brand:             "@byerim",
			InfringerUsername: `<script>alert(1)</script>`,
			Severity:          models.SeverityHigh,
			ThreatType:        models.ThreatImpersonation,
			Confidence:        0.8,
			Status:            models.ThreatStatusNew,
		}},
		Severity: map[models.Severity]int{},
	}

	body, err := BuildReportHTML(data, reportBrands())
	if err != nil {
		t.Fatalf("BuildReportHTML: %v", err)
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("unescaped HTML in report body")
	}
	if !strings.Contains(body, "80%") {
		t.Error("confidence percentage missing")
	}
}
