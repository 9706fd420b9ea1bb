package dmca

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/config"
	"github.com/byerim/brandshield/internal/models"
)

type fakeStore struct {
	threats map[uuid.UUID]*models.Threat
	notices map[uuid.UUID]*models.DMCANotice

	statusUpdates map[uuid.UUID]models.ThreatStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threats:       make(map[uuid.UUID]*models.Threat),
		notices:       make(map[uuid.UUID]*models.DMCANotice),
		statusUpdates: make(map[uuid.UUID]models.ThreatStatus),
	}
}

func (f *fakeStore) GetThreat(_ context.Context, id uuid.UUID) (*models.Threat, error) {
	return f.threats[id], nil
}

func (f *fakeStore) CreateNotice(_ context.Context, notice *models.DMCANotice) error {
	notice.ID = uuid.New()
	notice.CreatedAt = time.Now()
	f.notices[notice.ID] = notice
	return nil
}

func (f *fakeStore) GetNotice(_ context.Context, id uuid.UUID) (*models.DMCANotice, error) {
	return f.notices[id], nil
}

func (f *fakeStore) ListNotices(_ context.Context, _ *uuid.UUID) ([]models.DMCANotice, error) {
	out := make([]models.DMCANotice, 0, len(f.notices))
	for _, n := range f.notices {
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeStore) MarkNoticeSent(_ context.Context, id uuid.UUID) error {
	n, ok := f.notices[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	n.Status = models.NoticeStatusSent
	n.SentAt = &now
	return nil
}

func (f *fakeStore) UpdateThreatStatus(_ context.Context, id uuid.UUID, status models.ThreatStatus, _ string) error {
	f.statusUpdates[id] = status
	return nil
}

func testClaimant() config.DMCAConfig {
	return config.DMCAConfig{
		ClaimantName:    "Erim Kaur",
		ClaimantCompany: "ByErim Ltd",
		ClaimantEmail:   "legal@byerim.com",
		ClaimantAddress: "London, United Kingdom",
		ClaimantWebsite: "https://www.byerim.com",
	}
}

func seedThreat(store *fakeStore) *models.Threat {
	threat := &models.Threat{
		ID:                uuid.New(),
		Brand:             "byerim",
		ThreatType:        models.ThreatCounterfeit,
		Platform:          "instagram",
		DetectedURL:       "https://instagram.com/byerim_shop",
		InfringerUsername: "byerim_shop",
		Confidence:        0.82,
		Status:            models.ThreatStatusNew,
	}
	store.threats[threat.ID] = threat
	return threat
}

func TestGenerate_Counterfeit(t *testing.T) {
	store := newFakeStore()
	threat := seedThreat(store)

	cfg := testClaimant()
	cfg.OutputDir = t.TempDir()
	gen := New(store, cfg, nil)

	notice, err := gen.Generate(context.Background(), GenerateRequest{
		ThreatID:     threat.ID,
		NoticeType:   "counterfeit",
		ProductTitle: "Luxury Hair Oil 100ml",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if notice.NoticeType != "counterfeit" {
		t.Errorf("notice type = %q, want counterfeit", notice.NoticeType)
	}
	if notice.RecipientEmail != "ip@fb.com" {
		t.Errorf("recipient = %q, want ip@fb.com", notice.RecipientEmail)
	}
	if notice.RecipientPlatform != "instagram" {
		t.Errorf("recipient platform = %q", notice.RecipientPlatform)
	}
	if notice.SubjectLine != "DMCA Takedown Notice: counterfeit on instagram" {
		t.Errorf("subject = %q", notice.SubjectLine)
	}
	if notice.Status != models.NoticeStatusDraft {
		t.Errorf("status = %q, want draft", notice.Status)
	}

	for _, want := range []string{
		"Erim Kaur",
		"ByErim Ltd",
		"Luxury Hair Oil 100ml",
		"https://instagram.com/byerim_shop",
		"byerim_shop",
		"82% confidence",
		"Dear Copyright Team",
	} {
		if !strings.Contains(notice.Body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	if store.statusUpdates[threat.ID] != models.ThreatStatusReported {
		t.Errorf("threat status = %q, want reported", store.statusUpdates[threat.ID])
	}

	if notice.PDFPath == "" {
		t.Fatal("expected PDF path to be set")
	}
	if _, err := os.Stat(notice.PDFPath); err != nil {
		t.Errorf("PDF not written: %v", err)
	}
}

func TestGenerate_UnknownTypeFallsBackToGeneral(t *testing.T) {
	store := newFakeStore()
	threat := seedThreat(store)

	cfg := testClaimant()
	cfg.OutputDir = t.TempDir()
	gen := New(store, cfg, nil)

	notice, err := gen.Generate(context.Background(), GenerateRequest{
		ThreatID:   threat.ID,
		NoticeType: "meteor_strike",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if notice.NoticeType != "general" {
		t.Errorf("notice type = %q, want general", notice.NoticeType)
	}
	if !strings.Contains(notice.Body, "Digital Millennium Copyright Act") {
		t.Error("expected general template body")
	}
}

func TestGenerate_DefaultsWhenRequestEmpty(t *testing.T) {
	store := newFakeStore()
	threat := seedThreat(store)
	threat.Platform = "web"
	threat.ThreatType = models.ThreatImpersonation

	cfg := testClaimant()
	cfg.OutputDir = t.TempDir()
	gen := New(store, cfg, nil)

	notice, err := gen.Generate(context.Background(), GenerateRequest{
		ThreatID:       threat.ID,
		NoticeType:     "impersonation",
		RecipientEmail: "abuse@example.net",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// No platform contact for "web", so the request's recipient wins.
	if notice.RecipientEmail != "abuse@example.net" {
		t.Errorf("recipient = %q, want abuse@example.net", notice.RecipientEmail)
	}
	for _, want := range []string{
		"Original content by byerim",
		"https://www.byerim.com",
	} {
		if !strings.Contains(notice.Body, want) {
			t.Errorf("body missing default %q", want)
		}
	}
}

func TestGenerate_ThreatNotFound(t *testing.T) {
	gen := New(newFakeStore(), testClaimant(), nil)

	_, err := gen.Generate(context.Background(), GenerateRequest{ThreatID: uuid.New()})
	if !errors.Is(err, ErrThreatNotFound) {
		t.Fatalf("err = %v, want ErrThreatNotFound", err)
	}
}

func TestMarkSent(t *testing.T) {
	store := newFakeStore()
	threat := seedThreat(store)

	cfg := testClaimant()
	cfg.OutputDir = t.TempDir()
	gen := New(store, cfg, nil)

	notice, err := gen.Generate(context.Background(), GenerateRequest{ThreatID: threat.ID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sent, err := gen.MarkSent(context.Background(), notice.ID)
	if err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if sent.Status != models.NoticeStatusSent {
		t.Errorf("status = %q, want sent", sent.Status)
	}
	if sent.SentAt == nil {
		t.Error("expected sent_at to be set")
	}

	if _, err := gen.MarkSent(context.Background(), uuid.New()); !errors.Is(err, ErrNoticeNotFound) {
		t.Errorf("err = %v, want ErrNoticeNotFound", err)
	}
}
