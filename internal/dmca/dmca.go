// Package dmca drafts takedown notices for confirmed threats. A draft
// fills the claimant details from config, persists a notice row and
// renders a PDF copy for the operator to submit.
package dmca

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/config"
	"github.com/byerim/brandshield/internal/models"
)

var (
	ErrThreatNotFound = errors.New("threat not found")
	ErrNoticeNotFound = errors.New("notice not found")
)

// Store is the persistence surface notice drafting needs.
type Store interface {
	GetThreat(ctx context.Context, id uuid.UUID) (*models.Threat, error)
	CreateNotice(ctx context.Context, notice *models.DMCANotice) error
	GetNotice(ctx context.Context, id uuid.UUID) (*models.DMCANotice, error)
	ListNotices(ctx context.Context, threatID *uuid.UUID) ([]models.DMCANotice, error)
	MarkNoticeSent(ctx context.Context, id uuid.UUID) error
	UpdateThreatStatus(ctx context.Context, id uuid.UUID, status models.ThreatStatus, notes string) error
}

// platformEmails maps a detected platform to its published IP/abuse
// contact. Unknown platforms fall back to the request's recipient.
var platformEmails = map[string]string{
	"instagram": "ip@fb.com",
	"facebook":  "ip@fb.com",
	"tiktok":    "legal@tiktok.com",
	"shopify":   "legal@shopify.com",
	"amazon":    "copyright@amazon.com",
	"twitter":   "copyright@twitter.com",
	"youtube":   "copyright@youtube.com",
}

// Generator drafts notices and renders their PDF copies.
type Generator struct {
	store     Store
	claimant  config.DMCAConfig
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, cfg config.DMCAConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "data/dmca_notices"
	}
	return &Generator{
		store:     store,
		claimant:  cfg,
		outputDir: outputDir,
		logger:    logger.With("component", "dmca"),
		now:       time.Now,
	}
}

// GenerateRequest carries the operator-supplied fields of a draft.
// Everything except ThreatID is optional.
type GenerateRequest struct {
	ThreatID            uuid.UUID `json:"threat_id"`
	NoticeType          string    `json:"notice_type"`
	ProductTitle        string    `json:"product_title"`
	OriginalURL         string    `json:"original_url"`
	OriginalDescription string    `json:"original_description"`
	RecipientName       string    `json:"recipient_name"`
	RecipientEmail      string    `json:"recipient_email"`
	EvidenceDescription string    `json:"evidence_description"`
}

// noticeContext is the data a notice template renders against.
type noticeContext struct {
	Date                string
	ClaimantName        string
	Company             string
	ClaimantEmail       string
	ClaimantAddress     string
	ClaimantWebsite     string
	InfringingURL       string
	InfringerUsername   string
	InfringingPlatform  string
	ProductTitle        string
	OriginalURL         string
	OriginalDescription string
	RecipientName       string
	Confidence          int
	EvidenceDescription string
}

// Generate drafts a notice for a threat and marks the threat reported.
// The PDF copy is best effort; a render failure leaves PDFPath empty.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*models.DMCANotice, error) {
	threat, err := g.store.GetThreat(ctx, req.ThreatID)
	if err != nil {
		return nil, fmt.Errorf("loading threat: %w", err)
	}
	if threat == nil {
		return nil, ErrThreatNotFound
	}

	noticeType := req.NoticeType
	tmpl, ok := noticeTemplates[noticeType]
	if !ok {
		noticeType = "general"
		tmpl = noticeTemplates[noticeType]
	}

	data := g.buildContext(threat, req)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s notice: %w", noticeType, err)
	}
	body := buf.String()

	recipient := platformEmails[threat.Platform]
	if recipient == "" {
		recipient = req.RecipientEmail
	}

	notice := &models.DMCANotice{
		ThreatID:          threat.ID,
		NoticeType:        noticeType,
		RecipientEmail:    recipient,
		RecipientPlatform: threat.Platform,
		SubjectLine:       fmt.Sprintf("DMCA Takedown Notice: %s on %s", threat.ThreatType, threat.Platform),
		Body:              body,
		Status:            models.NoticeStatusDraft,
	}

	if path, err := g.renderPDF(notice, data); err != nil {
		g.logger.Warn("notice PDF render failed", "threat_id", threat.ID, "error", err)
	} else {
		notice.PDFPath = path
	}

	if err := g.store.CreateNotice(ctx, notice); err != nil {
		return nil, fmt.Errorf("saving notice: %w", err)
	}

	if err := g.store.UpdateThreatStatus(ctx, threat.ID, models.ThreatStatusReported, ""); err != nil {
		g.logger.Warn("marking threat reported failed", "threat_id", threat.ID, "error", err)
	}

	g.logger.Info("DMCA notice drafted",
		"notice_id", notice.ID,
		"threat_id", threat.ID,
		"notice_type", noticeType,
		"recipient", recipient,
	)
	return notice, nil
}

func (g *Generator) buildContext(threat *models.Threat, req GenerateRequest) noticeContext {
	confidence := int(math.Round(threat.Confidence * 100))

	originalURL := req.OriginalURL
	if originalURL == "" {
		originalURL = g.claimant.ClaimantWebsite
	}
	originalDesc := req.OriginalDescription
	if originalDesc == "" {
		originalDesc = fmt.Sprintf("Original content by %s", threat.Brand)
	}
	recipientName := req.RecipientName
	if recipientName == "" {
		recipientName = "Copyright Team"
	}
	productTitle := req.ProductTitle
	if productTitle == "" {
		productTitle = "N/A"
	}
	evidence := req.EvidenceDescription
	if evidence == "" {
		evidence = fmt.Sprintf(
			"The content at the infringing URL matches our original content with %d%% confidence.",
			confidence)
	}

	return noticeContext{
		Date:                g.now().Format("January 2, 2006"),
		ClaimantName:        g.claimant.ClaimantName,
		Company:             g.claimant.ClaimantCompany,
		ClaimantEmail:       g.claimant.ClaimantEmail,
		ClaimantAddress:     g.claimant.ClaimantAddress,
		ClaimantWebsite:     g.claimant.ClaimantWebsite,
		InfringingURL:       threat.DetectedURL,
		InfringerUsername:   threat.InfringerUsername,
		InfringingPlatform:  threat.Platform,
		ProductTitle:        productTitle,
		OriginalURL:         originalURL,
		OriginalDescription: originalDesc,
		RecipientName:       recipientName,
		Confidence:          confidence,
		EvidenceDescription: evidence,
	}
}

// renderPDF writes the notice to outputDir and returns the file path.
func (g *Generator) renderPDF(notice *models.DMCANotice, data noticeContext) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	name := fmt.Sprintf("dmca_%s_%s.pdf", notice.NoticeType, g.now().Format("20060102_150405"))
	path := filepath.Join(g.outputDir, name)

	doc := newNoticePDF(notice.SubjectLine)
	doc.addClaimantBlock(data)
	doc.addBody(notice.Body)
	if err := doc.write(path); err != nil {
		return "", err
	}
	return path, nil
}

// MarkSent flips a draft to sent. Delivery itself happens outside the
// system; platforms take notices through their own web forms.
func (g *Generator) MarkSent(ctx context.Context, id uuid.UUID) (*models.DMCANotice, error) {
	if err := g.store.MarkNoticeSent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoticeNotFound
		}
		return nil, err
	}
	return g.store.GetNotice(ctx, id)
}

var noticeTemplates = map[string]*template.Template{
	"general":       template.Must(template.New("general").Parse(generalTemplate)),
	"counterfeit":   template.Must(template.New("counterfeit").Parse(counterfeitTemplate)),
	"impersonation": template.Must(template.New("impersonation").Parse(impersonationTemplate)),
	"content_theft": template.Must(template.New("content_theft").Parse(contentTheftTemplate)),
}

const generalTemplate = `{{.Date}}

Dear {{.RecipientName}},

I am writing on behalf of {{.Company}} to report infringement of our
intellectual property rights under the Digital Millennium Copyright Act
(17 U.S.C. 512).

Infringing material:
  URL: {{.InfringingURL}}
  Platform: {{.InfringingPlatform}}
  Account: {{.InfringerUsername}}

Original work:
  {{.OriginalDescription}}
  Reference: {{.OriginalURL}}

{{.EvidenceDescription}}

I have a good faith belief that use of the material in the manner
complained of is not authorized by the copyright owner, its agent, or
the law. The information in this notification is accurate, and under
penalty of perjury, I am authorized to act on behalf of the owner of
the exclusive right that is allegedly infringed.

Please remove or disable access to the infringing material.

Signed,
{{.ClaimantName}}
{{.Company}}
{{.ClaimantEmail}}
{{.ClaimantAddress}}
{{.ClaimantWebsite}}
`

const counterfeitTemplate = `{{.Date}}

Dear {{.RecipientName}},

I am writing on behalf of {{.Company}} regarding the sale of
counterfeit goods at the listing below, which infringes our trademark
and copyright rights.

Infringing listing:
  URL: {{.InfringingURL}}
  Platform: {{.InfringingPlatform}}
  Seller: {{.InfringerUsername}}
  Product: {{.ProductTitle}}

Genuine product:
  {{.OriginalDescription}}
  Reference: {{.OriginalURL}}

{{.EvidenceDescription}}

The listing offers goods that are not manufactured by or licensed from
{{.Company}} and is likely to deceive consumers as to their origin. I
have a good faith belief that the use described above is not authorized
by the rights owner, its agent, or the law. The information in this
notification is accurate, and under penalty of perjury, I am authorized
to act on behalf of the rights owner.

Please remove the listing and suspend the seller's ability to relist.

Signed,
{{.ClaimantName}}
{{.Company}}
{{.ClaimantEmail}}
{{.ClaimantAddress}}
{{.ClaimantWebsite}}
`

const impersonationTemplate = `{{.Date}}

Dear {{.RecipientName}},

I am writing on behalf of {{.Company}} to report an account that is
impersonating our brand and using our copyrighted content without
authorization.

Impersonating account:
  URL: {{.InfringingURL}}
  Platform: {{.InfringingPlatform}}
  Username: {{.InfringerUsername}}

Authentic presence:
  {{.OriginalDescription}}
  Reference: {{.OriginalURL}}

{{.EvidenceDescription}}

The account reproduces our name, imagery and copyrighted material in a
way that misleads our customers. I have a good faith belief that this
use is not authorized by the rights owner, its agent, or the law. The
information in this notification is accurate, and under penalty of
perjury, I am authorized to act on behalf of the rights owner.

Please remove the account or the infringing material it hosts.

Signed,
{{.ClaimantName}}
{{.Company}}
{{.ClaimantEmail}}
{{.ClaimantAddress}}
{{.ClaimantWebsite}}
`

const contentTheftTemplate = `{{.Date}}

Dear {{.RecipientName}},

I am writing on behalf of {{.Company}} to report unauthorized
reproduction of our copyrighted content.

Infringing material:
  URL: {{.InfringingURL}}
  Platform: {{.InfringingPlatform}}
  Account: {{.InfringerUsername}}

Original work:
  {{.OriginalDescription}}
  Reference: {{.OriginalURL}}

{{.EvidenceDescription}}

I have a good faith belief that use of the material in the manner
complained of is not authorized by the copyright owner, its agent, or
the law. The information in this notification is accurate, and under
penalty of perjury, I am authorized to act on behalf of the owner of
the exclusive right that is allegedly infringed.

Please remove or disable access to the copied material.

Signed,
{{.ClaimantName}}
{{.Company}}
{{.ClaimantEmail}}
{{.ClaimantAddress}}
{{.ClaimantWebsite}}
`
