package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/postprober/dashboard-core/internal/models"
)

const reportTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>PostProber Health Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #4f46e5; color: white; padding: 20px; border-radius: 5px; }
        .platform { border-left: 4px solid #605e5c; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .healthy { border-left-color: #107c10; }
        .warning { border-left-color: #ffb900; }
        .critical { border-left-color: #d13438; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Platform Health Digest</h1>
        <p>{{.Period | title}} digest generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <h2>Platforms</h2>
    {{if .Platforms}}
    {{range .Platforms}}
    <div class="platform {{.Status}}">
        <strong>{{.Platform | title}}</strong>: {{.Status}}
        <div class="meta">
            {{printf "%.0f" .ResponseTimeMS}} ms | {{printf "%.1f" .ErrorRate}}% errors | rate limit {{printf "%.0f" .RateLimitPercent}}%
            {{if .Details}} | {{.Details}}{{end}}
        </div>
    </div>
    {{end}}
    {{else}}
    <p>No health data for connected platforms yet.</p>
    {{end}}

    {{if .Alerts}}
    <h2>Recent Alerts</h2>
    {{range .Alerts}}
    <div class="platform {{.Severity}}">
        <strong>{{.Platform | title}}</strong> ({{.Severity}}): {{.Message}}
        {{if .RecommendedAction}}<div class="meta">{{.RecommendedAction}}</div>{{end}}
    </div>
    {{end}}
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by PostProber.</small></p>
</body>
</html>
`

const alertTemplate = `
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>PostProber Health Alert</title></head>
<body style="font-family: Arial, sans-serif; margin: 20px;">
    <h2>{{.Platform | title}}: {{.Severity}}</h2>
    <p>{{.Message}}</p>
    {{if .RecommendedAction}}<p><strong>Recommended action:</strong> {{.RecommendedAction}}</p>{{end}}
    <p><small>{{.Timestamp.Format "January 2, 2006 at 3:04 PM UTC"}}</small></p>
</body>
</html>
`

var templateFuncs = template.FuncMap{
	"title": titleCase,
}

var (
	reportHTML = template.Must(template.New("report").Funcs(templateFuncs).Parse(reportTemplate))
	alertHTML  = template.Must(template.New("alert").Funcs(templateFuncs).Parse(alertTemplate))
)

func renderReportHTML(report *models.Report) (string, error) {
	var buf bytes.Buffer
	if err := reportHTML.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderAlertHTML(alert *models.Alert) (string, error) {
	var buf bytes.Buffer
	if err := alertHTML.Execute(&buf, alert); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildReportText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("PostProber Health Digest - %s\n", titleCase(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("PLATFORMS\n")
	text.WriteString("=========\n")
	if len(report.Platforms) == 0 {
		text.WriteString("No health data for connected platforms yet.\n")
	}
	for _, p := range report.Platforms {
		text.WriteString(fmt.Sprintf("%s: %s | %.0f ms | %.1f%% errors | rate limit %.0f%%\n",
			titleCase(p.Platform), p.Status, p.ResponseTimeMS, p.ErrorRate, p.RateLimitPercent()))
	}

	if attention, ok := report.Summary["needs_attention"].([]string); ok && len(attention) > 0 {
		text.WriteString(fmt.Sprintf("\nNeeds attention: %s\n", strings.Join(attention, ", ")))
	}

	if len(report.Alerts) > 0 {
		text.WriteString("\nRECENT ALERTS\n")
		text.WriteString("=============\n")
		for i, alert := range report.Alerts {
			text.WriteString(fmt.Sprintf("\n%d. [%s] %s: %s\n", i+1, strings.ToUpper(string(alert.Severity)), titleCase(alert.Platform), alert.Message))
			if alert.RecommendedAction != "" {
				text.WriteString(fmt.Sprintf("   Action: %s\n", alert.RecommendedAction))
			}
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by PostProber.\n")

	return text.String()
}

func buildAlertText(alert *models.Alert) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%s health alert (%s)\n\n", titleCase(alert.Platform), strings.ToUpper(string(alert.Severity))))
	text.WriteString(alert.Message + "\n")
	if alert.RecommendedAction != "" {
		text.WriteString(fmt.Sprintf("\nRecommended action: %s\n", alert.RecommendedAction))
	}
	text.WriteString(fmt.Sprintf("\nTime: %s\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))

	return text.String()
}
