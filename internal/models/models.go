package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

type ThreatType string

const (
	ThreatImpersonation ThreatType = "impersonation"
	ThreatCounterfeit   ThreatType = "counterfeit"
	ThreatContentTheft  ThreatType = "content_theft"
	ThreatTextTheft     ThreatType = "text_theft"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank orders severities for comparisons and notification floors.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type ThreatStatus string

const (
	ThreatStatusNew      ThreatStatus = "new"
	ThreatStatusReported ThreatStatus = "reported"
	ThreatStatusResolved ThreatStatus = "resolved"
	ThreatStatusIgnored  ThreatStatus = "ignored"
)

type SuspectStatus string

const (
	SuspectStatusSuspected SuspectStatus = "suspected"
	SuspectStatusConfirmed SuspectStatus = "confirmed"
	SuspectStatusCleared   SuspectStatus = "cleared"
)

type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

type ScanType string

const (
	ScanTypeFull         ScanType = "full_scan"
	ScanTypeBrand        ScanType = "brand_scan"
	ScanTypePlatform     ScanType = "platform_scan"
	ScanTypeWeeklyReport ScanType = "weekly_report"
)

type NoticeStatus string

const (
	NoticeStatusDraft NoticeStatus = "draft"
	NoticeStatusSent  NoticeStatus = "sent"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// BrandProfile describes one protected brand. Loaded from configuration and
// never mutated at runtime.
type BrandProfile struct {
	Key             string            `yaml:"key" json:"key"`
	DisplayName     string            `yaml:"display_name" json:"display_name"`
	PlatformHandles map[string]string `yaml:"platform_handles" json:"platform_handles"`
	VerifiedURLs    []string          `yaml:"verified_urls" json:"verified_urls"`
	Keywords        []string          `yaml:"keywords" json:"keywords"`
	BioPhrases      []string          `yaml:"bio_phrases" json:"bio_phrases"`
	ProductNames    []string          `yaml:"product_names" json:"product_names"`
}

// CandidateResult is one raw search hit flowing through a single pipeline
// pass. It is never persisted.
type CandidateResult struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Platform  string     `json:"platform"`
	QueryType ThreatType `json:"query_type"`
	Brand     string     `json:"brand"`
}

// ProfileData carries attributes extracted from a public profile page.
// Present only when enrichment succeeds.
type ProfileData struct {
	Platform      string `json:"platform"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	Bio           string `json:"bio"`
	FollowerCount int    `json:"follower_count"`
}

type Threat struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	Brand              string       `json:"brand" db:"brand"`
	ThreatType         ThreatType   `json:"threat_type" db:"threat_type"`
	Severity           Severity     `json:"severity" db:"severity"`
	Platform           string       `json:"platform" db:"platform"`
	DetectedURL        string       `json:"detected_url" db:"detected_url"`
	InfringerUsername  string       `json:"infringer_username" db:"infringer_username"`
	Confidence         float64      `json:"confidence" db:"confidence"`
	Evidence           JSONB        `json:"evidence" db:"evidence"`
	Status             ThreatStatus `json:"status" db:"status"`
	Notes              string       `json:"notes,omitempty" db:"notes"`
	DetectedAt         time.Time    `json:"detected_at" db:"detected_at"`
	ResolvedAt         *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}

type SuspiciousAccount struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Brand            string        `json:"brand" db:"brand"`
	Platform         string        `json:"platform" db:"platform"`
	Username         string        `json:"username" db:"username"`
	ProfileURL       string        `json:"profile_url" db:"profile_url"`
	DisplayName      string        `json:"display_name" db:"display_name"`
	BioText          string        `json:"bio_text" db:"bio_text"`
	FollowerCount    int           `json:"follower_count" db:"follower_count"`
	PostCount        int           `json:"post_count" db:"post_count"`
	RiskScore        float64       `json:"risk_score" db:"risk_score"`
	DetectionReasons StringArray   `json:"detection_reasons" db:"detection_reasons"`
	Status           SuspectStatus `json:"status" db:"status"`
	DetectedAt       time.Time     `json:"detected_at" db:"detected_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

type ScanRecord struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ScanType         ScanType   `json:"scan_type" db:"scan_type"`
	Brand            string     `json:"brand,omitempty" db:"brand"`
	Platform         string     `json:"platform,omitempty" db:"platform"`
	ItemsScanned     int        `json:"items_scanned" db:"items_scanned"`
	ThreatsFound     int        `json:"threats_found" db:"threats_found"`
	ExecutionSeconds float64    `json:"execution_time_seconds" db:"execution_time_seconds"`
	Status           ScanStatus `json:"status" db:"status"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type DMCANotice struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	ThreatID          uuid.UUID    `json:"threat_id" db:"threat_id"`
	NoticeType        string       `json:"notice_type" db:"notice_type"`
	RecipientEmail    string       `json:"recipient_email" db:"recipient_email"`
	RecipientPlatform string       `json:"recipient_platform" db:"recipient_platform"`
	SubjectLine       string       `json:"subject_line" db:"subject_line"`
	Body              string       `json:"body" db:"body"`
	PDFPath           string       `json:"pdf_path,omitempty" db:"pdf_path"`
	Status            NoticeStatus `json:"status" db:"status"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	SentAt            *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
}

// IsSocialPlatform reports whether a detected platform supports profile
// enrichment.
func IsSocialPlatform(platform string) bool {
	switch platform {
	case "instagram", "twitter", "tiktok", "youtube", "facebook":
		return true
	}
	return false
}
