package reporter

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/byerim/brandshield/internal/models"
)

const maxReportRows = 20
const maxActionableRows = 10

var reportFuncs = template.FuncMap{
	"severityColor": severityColor,
	"pct":           formatPct,
	"title": func(s string) string {
		if s == "" {
			return "Unknown"
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"date": func(t time.Time) string {
		return t.UTC().Format("02 Jan 2006 15:04")
	},
}

func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#f85149"
	case models.SeverityHigh:
		return "#f0883e"
	case models.SeverityMedium:
		return "#d29922"
	default:
		return "#8b949e"
	}
}

func formatPct(v float64) string {
	if v <= 1 {
		v *= 100
	}
	return strconv.Itoa(int(v)) + "%"
}

var reportTemplate = template.Must(template.New("weekly").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background:#0d1117;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Helvetica,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px;">

<div style="text-align:center;padding:24px 0;border-bottom:1px solid #21262d;">
    <h1 style="color:#58a6ff;margin:0;font-size:24px;">Brand Shield Weekly Report</h1>
    <p style="color:#8b949e;margin:8px 0 0;font-size:14px;">{{date .Data.PeriodEnd}} &mdash; Protecting {{.BrandList}}</p>
</div>

<div style="display:flex;gap:12px;margin:20px 0;flex-wrap:wrap;">
    <div style="flex:1;min-width:120px;background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;text-align:center;">
        <div style="color:#8b949e;font-size:12px;text-transform:uppercase;">New This Week</div>
        <div style="color:#f85149;font-size:28px;font-weight:bold;margin:4px 0;">{{len .Data.NewThreats}}</div>
    </div>
    <div style="flex:1;min-width:120px;background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;text-align:center;">
        <div style="color:#8b949e;font-size:12px;text-transform:uppercase;">Active Threats</div>
        <div style="color:#f0883e;font-size:28px;font-weight:bold;margin:4px 0;">{{len .Data.ActiveThreats}}</div>
    </div>
    <div style="flex:1;min-width:120px;background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;text-align:center;">
        <div style="color:#8b949e;font-size:12px;text-transform:uppercase;">DMCA Sent</div>
        <div style="color:#58a6ff;font-size:28px;font-weight:bold;margin:4px 0;">{{len .Data.NewNotices}}</div>
    </div>
    <div style="flex:1;min-width:120px;background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;text-align:center;">
        <div style="color:#8b949e;font-size:12px;text-transform:uppercase;">Suspects</div>
        <div style="color:#d29922;font-size:28px;font-weight:bold;margin:4px 0;">{{len .Data.Suspects}}</div>
    </div>
</div>

<div style="background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;margin:16px 0;">
    <h3 style="color:#e6edf3;margin:0 0 12px;font-size:14px;">Active Threat Severity</h3>
    <div style="display:flex;gap:16px;flex-wrap:wrap;">
        <span style="color:#f85149;font-weight:bold;">{{index .SeverityCounts "critical"}} Critical</span>
        <span style="color:#f0883e;font-weight:bold;">{{index .SeverityCounts "high"}} High</span>
        <span style="color:#d29922;font-weight:bold;">{{index .SeverityCounts "medium"}} Medium</span>
        <span style="color:#8b949e;font-weight:bold;">{{index .SeverityCounts "low"}} Low</span>
    </div>
    <div style="color:#8b949e;font-size:12px;margin-top:8px;">{{.Data.IgnoredCount}} threat(s) marked as ignored</div>
</div>

{{if .Data.NewThreats}}
<div style="background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;margin:16px 0;">
    <h3 style="color:#e6edf3;margin:0 0 12px;font-size:14px;">New Threats Detected This Week</h3>
    <table style="width:100%;border-collapse:collapse;font-size:13px;">
    <tr style="border-bottom:1px solid #21262d;">
        <th style="color:#8b949e;text-align:left;padding:8px 4px;">Brand</th>
        <th style="color:#8b949e;text-align:left;padding:8px 4px;">Infringer</th>
        <th style="color:#8b949e;text-align:left;padding:8px 4px;">Platform</th>
        <th style="color:#8b949e;text-align:left;padding:8px 4px;">Type</th>
        <th style="color:#8b949e;text-align:left;padding:8px 4px;">Severity</th>
        <th style="color:#8b949e;text-align:right;padding:8px 4px;">Confidence</th>
    </tr>
    {{range .NewThreatRows}}
    <tr style="border-bottom:1px solid #21262d;">
        <td style="color:#e6edf3;padding:8px 4px;">{{.Brand}}</td>
        <td style="color:#e6edf3;padding:8px 4px;">{{if .InfringerUsername}}{{.InfringerUsername}}{{else}}Unknown{{end}}</td>
        <td style="color:#e6edf3;padding:8px 4px;">{{.Platform}}</td>
        <td style="color:#e6edf3;padding:8px 4px;">{{.ThreatType}}</td>
        <td style="padding:8px 4px;"><span style="color:{{severityColor .Severity}};font-weight:bold;">{{title (printf "%s" .Severity)}}</span></td>
        <td style="color:#e6edf3;padding:8px 4px;text-align:right;">{{pct .Confidence}}</td>
    </tr>
    {{end}}
    </table>
</div>
{{end}}

{{if .ActionableRows}}
<div style="background:#161b22;border:1px solid #f0883e;border-radius:8px;padding:16px;margin:16px 0;">
    <h3 style="color:#f0883e;margin:0 0 8px;font-size:14px;">Suggested DMCA Actions</h3>
    <p style="color:#8b949e;font-size:12px;margin:0 0 12px;">These high-confidence threats are recommended for takedown.</p>
    {{range .ActionableRows}}
    <div style="border-bottom:1px solid #21262d;padding:8px 0;">
        <span style="color:#e6edf3;font-weight:bold;">{{.InfringerUsername}}</span>
        <span style="color:#8b949e;"> on {{.Platform}} ({{.Brand}}) &mdash; {{pct .Confidence}} confidence</span>
    </div>
    {{end}}
</div>
{{end}}

{{if .Data.Suspects}}
<div style="background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;margin:16px 0;">
    <h3 style="color:#e6edf3;margin:0 0 12px;font-size:14px;">Suspicious Accounts Under Watch</h3>
    {{range .SuspectRows}}
    <div style="border-bottom:1px solid #21262d;padding:8px 0;">
        <span style="color:#e6edf3;font-weight:bold;">{{.Username}}</span>
        <span style="color:#8b949e;"> on {{.Platform}} ({{.Brand}}) &mdash; risk {{pct .RiskScore}}</span>
    </div>
    {{end}}
</div>
{{end}}

<div style="background:#161b22;border:1px solid #21262d;border-radius:8px;padding:16px;margin:16px 0;">
    <h3 style="color:#e6edf3;margin:0 0 12px;font-size:14px;">Scan Activity</h3>
    <div style="color:#8b949e;font-size:13px;">{{len .Data.Scans}} scan(s) in the last 7 days</div>
</div>

<div style="text-align:center;padding:16px 0;color:#484f58;font-size:12px;">
    Brand Shield automated report &mdash; {{date .Data.PeriodEnd}}
</div>

</div>
</body>
</html>`))

type reportContext struct {
	Data           *WeeklyData
	BrandList      string
	SeverityCounts map[string]int
	NewThreatRows  []models.Threat
	ActionableRows []models.Threat
	SuspectRows    []models.SuspiciousAccount
}

// BuildReportHTML renders the weekly digest email body.
func BuildReportHTML(data *WeeklyData, brands []models.BrandProfile) (string, error) {
	keys := make([]string, 0, len(brands))
	for _, b := range brands {
		keys = append(keys, b.Key)
	}

	severityCounts := make(map[string]int, len(data.Severity))
	for sev, count := range data.Severity {
		severityCounts[string(sev)] = count
	}

	ctx := reportContext{
		Data:           data,
		BrandList:      strings.Join(keys, " & "),
		SeverityCounts: severityCounts,
		NewThreatRows:  capThreats(data.NewThreats, maxReportRows),
		ActionableRows: capThreats(data.Actionable, maxActionableRows),
		SuspectRows:    capSuspects(data.Suspects, maxReportRows),
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func capThreats(in []models.Threat, n int) []models.Threat {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func capSuspects(in []models.SuspiciousAccount, n int) []models.SuspiciousAccount {
	if len(in) > n {
		return in[:n]
	}
	return in
}
