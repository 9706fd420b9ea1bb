package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/byerim/brandshield/internal/models"
)

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		actual   models.Severity
		minimum  models.Severity
		expected bool
	}{
		{models.SeverityCritical, models.SeverityHigh, true},
		{models.SeverityHigh, models.SeverityHigh, true},
		{models.SeverityMedium, models.SeverityHigh, false},
		{models.SeverityLow, models.SeverityLow, true},
		{models.SeverityLow, models.SeverityCritical, false},
	}

	for _, tt := range tests {
		if got := shouldNotify(tt.actual, tt.minimum); got != tt.expected {
			t.Errorf("shouldNotify(%s, %s) = %v, want %v", tt.actual, tt.minimum, got, tt.expected)
		}
	}
}

func TestNotifyThreat_Slack(t *testing.T) {
	var received SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding slack payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(Config{
		Slack: SlackConfig{
			WebhookURL:  srv.URL,
			Enabled:     true,
			MinSeverity: models.SeverityMedium,
		},
	}, nil)

	threat := &models.Threat{
		Brand:             "@byerim",
		ThreatType:        models.ThreatImpersonation,
		Severity:          models.SeverityHigh,
		Platform:          "instagram",
		DetectedURL:       "https://instagram.com/byerim_fake",
		InfringerUsername: "byerim_fake",
		Confidence:        0.82,
	}

	if err := svc.NotifyThreat(context.Background(), threat); err != nil {
		t.Fatalf("NotifyThreat: %v", err)
	}

	if len(received.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.TitleLink != threat.DetectedURL {
		t.Errorf("title link = %q, want detected URL", att.TitleLink)
	}

	var foundBrand bool
	for _, f := range att.Fields {
		if f.Title == "Brand" && f.Value == "@byerim" {
			foundBrand = true
		}
	}
	if !foundBrand {
		t.Error("expected a Brand field in the slack attachment")
	}
}

func TestSend_SeverityFloorSkipsSlack(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(Config{
		Slack: SlackConfig{
			WebhookURL:  srv.URL,
			Enabled:     true,
			MinSeverity: models.SeverityHigh,
		},
	}, nil)

	notif := &Notification{
		Type:      NotifyNewThreat,
		Title:     "low severity",
		Severity:  models.SeverityLow,
		Timestamp: time.Now(),
	}
	if err := svc.Send(context.Background(), notif); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if called {
		t.Error("slack webhook called below the severity floor")
	}
}

func TestFormatEmailBody(t *testing.T) {
	svc := NewService(Config{}, nil)

	notif := &Notification{
		Type:     NotifyCriticalThreat,
		Title:    "CRITICAL brand threat detected",
		Message:  "counterfeit threat against @byerim on etsy",
		Severity: models.SeverityCritical,
		Data: map[string]interface{}{
			"brand": "@byerim",
		},
		Timestamp: time.Now(),
	}

	body, err := svc.formatEmailBody(notif)
	if err != nil {
		t.Fatalf("formatEmailBody: %v", err)
	}
	if !strings.Contains(body, "CRITICAL brand threat detected") {
		t.Error("body missing title")
	}
	if !strings.Contains(body, "@byerim") {
		t.Error("body missing data fields")
	}
	if !strings.Contains(body, "#F44336") {
		t.Error("critical header color missing")
	}
}

func TestSendEmail_DisabledChannel(t *testing.T) {
	svc := NewService(Config{}, nil)
	if err := svc.SendEmail("subject", "<p>body</p>"); err == nil {
		t.Fatal("expected error when email channel disabled")
	}
}
