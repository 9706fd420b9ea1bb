package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/byerim/brandshield/internal/models"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotifyNewThreat      NotificationType = "new_threat"
	NotifyCriticalThreat NotificationType = "critical_threat"
	NotifyScanComplete   NotificationType = "scan_complete"
	NotifyScanFailed     NotificationType = "scan_failed"
	NotifyWeeklyReport   NotificationType = "weekly_report"
)

// Channel defines notification channels
type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Severity  models.Severity
	Data      map[string]interface{}
	Timestamp time.Time
}

// Config holds notification configuration
type Config struct {
	Slack SlackConfig
	Email EmailConfig
}

// SlackConfig holds Slack configuration
type SlackConfig struct {
	WebhookURL  string
	Channel     string
	Username    string
	IconEmoji   string
	Enabled     bool
	MinSeverity models.Severity // Minimum severity to notify
}

// EmailConfig holds email configuration
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	From        string
	To          []string
	Enabled     bool
	MinSeverity models.Severity
}

// Service handles notifications
type Service struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

// NewService creates a new notification service
func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends a notification to all enabled channels
func (s *Service) Send(ctx context.Context, notif *Notification) error {
	var errs []error

	if s.config.Slack.Enabled && shouldNotify(notif.Severity, s.config.Slack.MinSeverity) {
		if err := s.sendSlack(ctx, notif); err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	if s.config.Email.Enabled && shouldNotify(notif.Severity, s.config.Email.MinSeverity) {
		if err := s.sendEmail(notif); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}

	return nil
}

// shouldNotify checks if notification should be sent based on severity
func shouldNotify(actual, minimum models.Severity) bool {
	return models.SeverityRank(actual) >= models.SeverityRank(minimum)
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// sendSlack sends a notification to Slack
func (s *Service) sendSlack(ctx context.Context, notif *Notification) error {
	color := severityToColor(notif.Severity)

	fields := []SlackField{}
	if notif.Data != nil {
		if brand, ok := notif.Data["brand"].(string); ok {
			fields = append(fields, SlackField{Title: "Brand", Value: brand, Short: true})
		}
		if platform, ok := notif.Data["platform"].(string); ok {
			fields = append(fields, SlackField{Title: "Platform", Value: platform, Short: true})
		}
		if username, ok := notif.Data["infringer"].(string); ok && username != "" {
			fields = append(fields, SlackField{Title: "Infringer", Value: username, Short: true})
		}
		if count, ok := notif.Data["threats_found"].(int); ok {
			fields = append(fields, SlackField{Title: "Threats", Value: fmt.Sprintf("%d", count), Short: true})
		}
		if severity, ok := notif.Data["severity"].(string); ok {
			fields = append(fields, SlackField{Title: "Severity", Value: severity, Short: true})
		}
	}

	var titleLink string
	if url, ok := notif.Data["url"].(string); ok {
		titleLink = url
	}

	msg := SlackMessage{
		Channel:   s.config.Slack.Channel,
		Username:  s.config.Slack.Username,
		IconEmoji: s.config.Slack.IconEmoji,
		Attachments: []SlackAttachment{
			{
				Color:     color,
				Title:     notif.Title,
				TitleLink: titleLink,
				Text:      notif.Message,
				Fallback:  fmt.Sprintf("%s: %s", notif.Title, notif.Message),
				Fields:    fields,
				Footer:    "Brand Shield",
				Timestamp: notif.Timestamp.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.Slack.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	s.logger.Info("slack notification sent",
		"type", notif.Type,
		"title", notif.Title)

	return nil
}

// severityToColor converts severity to Slack color
func severityToColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#FF0000" // Red
	case models.SeverityHigh:
		return "#FFA500" // Orange
	case models.SeverityMedium:
		return "#FFFF00" // Yellow
	default:
		return "#36A64F" // Green
	}
}

// sendEmail sends a notification via email
func (s *Service) sendEmail(notif *Notification) error {
	subject := fmt.Sprintf("[Brand Shield] %s", notif.Title)
	body, err := s.formatEmailBody(notif)
	if err != nil {
		return err
	}

	return s.SendEmail(subject, body)
}

// SendEmail delivers a raw HTML email to the configured recipients. The
// weekly reporter builds its own body and goes through here.
func (s *Service) SendEmail(subject, htmlBody string) error {
	if !s.config.Email.Enabled {
		return fmt.Errorf("email channel disabled")
	}

	msg := s.buildEmailMessage(subject, htmlBody)

	var auth smtp.Auth
	if s.config.Email.Username != "" {
		auth = smtp.PlainAuth("", s.config.Email.Username, s.config.Email.Password, s.config.Email.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)

	if err := smtp.SendMail(addr, auth, s.config.Email.From, s.config.Email.To, []byte(msg)); err != nil {
		return err
	}

	s.logger.Info("email sent",
		"subject", subject,
		"recipients", len(s.config.Email.To))

	return nil
}

// EmailEnabled reports whether the email channel can deliver.
func (s *Service) EmailEnabled() bool {
	return s.config.Email.Enabled && s.config.Email.SMTPHost != "" && len(s.config.Email.To) > 0
}

// buildEmailMessage builds an email message
func (s *Service) buildEmailMessage(subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.Email.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.Email.To, ",")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// formatEmailBody formats the email body
func (s *Service) formatEmailBody(notif *Notification) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { padding: 20px; background: {{.HeaderColor}}; color: white; border-radius: 8px 8px 0 0; }
        .content { padding: 20px; }
        .severity { display: inline-block; padding: 4px 8px; border-radius: 4px; font-weight: bold; background: {{.SeverityColor}}; color: white; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .data-table td { padding: 8px; border-bottom: 1px solid #eee; }
        .data-table td:first-child { font-weight: bold; width: 30%; }
        .footer { padding: 15px 20px; background: #f9f9f9; border-radius: 0 0 8px 8px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h2 style="margin:0;">{{.Title}}</h2>
        </div>
        <div class="content">
            <p>{{.Message}}</p>
            <p>Severity: <span class="severity">{{.Severity}}</span></p>
            {{if .HasData}}
            <table class="data-table">
                {{range $key, $value := .Data}}
                <tr>
                    <td>{{$key}}</td>
                    <td>{{$value}}</td>
                </tr>
                {{end}}
            </table>
            {{end}}
        </div>
        <div class="footer">
            <p>This is an automated alert from Brand Shield.</p>
            <p>Generated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	headerColor := "#2196F3" // Default blue
	severityColor := severityToColor(notif.Severity)

	switch notif.Severity {
	case models.SeverityCritical:
		headerColor = "#F44336"
	case models.SeverityHigh:
		headerColor = "#FF9800"
	case models.SeverityMedium:
		headerColor = "#FFC107"
	}

	data := map[string]interface{}{
		"Title":         notif.Title,
		"Message":       notif.Message,
		"Severity":      string(notif.Severity),
		"HeaderColor":   headerColor,
		"SeverityColor": severityColor,
		"Data":          notif.Data,
		"HasData":       len(notif.Data) > 0,
		"Timestamp":     notif.Timestamp.Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// NotifyThreat sends a notification for a newly detected threat
func (s *Service) NotifyThreat(ctx context.Context, threat *models.Threat) error {
	notifType := NotifyNewThreat
	title := fmt.Sprintf("New %s threat detected", threat.Severity)
	if threat.Severity == models.SeverityCritical {
		notifType = NotifyCriticalThreat
		title = "CRITICAL brand threat detected"
	}

	notif := &Notification{
		Type:     notifType,
		Title:    title,
		Message:  fmt.Sprintf("%s threat against %s on %s", threat.ThreatType, threat.Brand, threat.Platform),
		Severity: threat.Severity,
		Data: map[string]interface{}{
			"brand":      threat.Brand,
			"platform":   threat.Platform,
			"infringer":  threat.InfringerUsername,
			"url":        threat.DetectedURL,
			"severity":   string(threat.Severity),
			"confidence": fmt.Sprintf("%.0f%%", threat.Confidence*100),
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}

// ScanStats holds scan statistics for completion notifications
type ScanStats struct {
	ItemsScanned    int
	ThreatsFound    int
	CriticalThreats int
	HighThreats     int
	Duration        time.Duration
}

// statsToSeverity determines notification severity from scan stats
func statsToSeverity(stats ScanStats) models.Severity {
	if stats.CriticalThreats > 0 {
		return models.SeverityCritical
	}
	if stats.HighThreats > 0 {
		return models.SeverityHigh
	}
	if stats.ThreatsFound > 0 {
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// NotifyScanComplete sends a notification when a scan completes
func (s *Service) NotifyScanComplete(ctx context.Context, brand string, stats ScanStats) error {
	scope := "all brands"
	if brand != "" {
		scope = brand
	}

	notif := &Notification{
		Type:     NotifyScanComplete,
		Title:    "Scan Completed",
		Message:  fmt.Sprintf("Scan completed for %s", scope),
		Severity: statsToSeverity(stats),
		Data: map[string]interface{}{
			"brand":         brand,
			"items_scanned": stats.ItemsScanned,
			"threats_found": stats.ThreatsFound,
			"duration":      stats.Duration.String(),
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}

// NotifyScanFailed sends a notification when a scan fails
func (s *Service) NotifyScanFailed(ctx context.Context, brand string, err error) error {
	scope := "all brands"
	if brand != "" {
		scope = brand
	}

	notif := &Notification{
		Type:     NotifyScanFailed,
		Title:    "Scan Failed",
		Message:  fmt.Sprintf("Scan failed for %s: %s", scope, err.Error()),
		Severity: models.SeverityHigh,
		Data: map[string]interface{}{
			"brand": brand,
			"error": err.Error(),
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}
