package notifications

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	mailer mailer
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// mailer is satisfied by *gomail.Dialer
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// TeamsMessage represents a Microsoft Teams message card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// SendReport sends a health digest via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	return s.fanOut("report",
		func() error { return s.postToTeams(s.buildReportCard(report)) },
		func() error {
			html, err := renderReportHTML(report)
			if err != nil {
				return fmt.Errorf("failed to build email HTML: %w", err)
			}
			subject := fmt.Sprintf("PostProber Health Digest - %s (%d platforms)", titleCase(report.Period), len(report.Platforms))
			return s.sendEmail(subject, buildReportText(report), html)
		},
	)
}

// SendAlert sends a single health alert via configured notification channels
func (s *Service) SendAlert(alert *models.Alert) error {
	return s.fanOut("alert",
		func() error { return s.postToTeams(s.buildAlertCard(alert)) },
		func() error {
			html, err := renderAlertHTML(alert)
			if err != nil {
				return fmt.Errorf("failed to build email HTML: %w", err)
			}
			subject := fmt.Sprintf("[%s] %s health alert", strings.ToUpper(string(alert.Severity)), titleCase(alert.Platform))
			return s.sendEmail(subject, buildAlertText(alert), html)
		},
	)
}

func (s *Service) fanOut(kind string, teams, email func() error) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send email %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildReportCard(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColor(worstStatus(report.Platforms)),
		Title:      fmt.Sprintf("PostProber Health Digest - %s", titleCase(report.Period)),
		Text:       fmt.Sprintf("%d connected platforms, %d recent alerts", len(report.Platforms), len(report.Alerts)),
	}

	facts := []TeamsFact{
		{Name: "Generated", Value: report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	if counts, ok := report.Summary["status"].(map[string]int); ok {
		for _, status := range sortedKeys(counts) {
			facts = append(facts, TeamsFact{Name: titleCase(status), Value: fmt.Sprintf("%d", counts[status])})
		}
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if len(report.Platforms) > 0 {
		var lines []string
		for _, p := range report.Platforms {
			lines = append(lines, fmt.Sprintf("**%s** - %s | %.0f ms | %.1f%% errors | rate limit %.0f%%",
				titleCase(p.Platform), p.Status, p.ResponseTimeMS, p.ErrorRate, p.RateLimitPercent()))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Platforms",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	if len(report.Alerts) > 0 {
		var lines []string
		limit := 5
		if len(report.Alerts) < limit {
			limit = len(report.Alerts)
		}
		for _, alert := range report.Alerts[:limit] {
			lines = append(lines, fmt.Sprintf("**%s** %s - %s (%s)",
				strings.ToUpper(string(alert.Severity)), titleCase(alert.Platform), alert.Message, alert.Timestamp.Format("Jan 2 15:04")))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recent Alerts",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) buildAlertCard(alert *models.Alert) *TeamsMessage {
	status := models.HealthWarning
	if alert.Severity == models.SeverityCritical {
		status = models.HealthCritical
	}

	facts := []TeamsFact{
		{Name: "Platform", Value: titleCase(alert.Platform)},
		{Name: "Severity", Value: strings.ToUpper(string(alert.Severity))},
		{Name: "Time", Value: alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	if alert.RecommendedAction != "" {
		facts = append(facts, TeamsFact{Name: "Recommended Action", Value: alert.RecommendedAction})
	}

	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColor(status),
		Title:      fmt.Sprintf("%s health alert", titleCase(alert.Platform)),
		Text:       alert.Message,
		Sections: []TeamsSection{{
			Facts:    facts,
			Markdown: true,
		}},
	}
}

func (s *Service) sendEmail(subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func worstStatus(updates []models.HealthUpdate) models.HealthStatus {
	worst := models.HealthHealthy
	for _, u := range updates {
		switch {
		case u.Status == models.HealthCritical:
			return models.HealthCritical
		case u.Status == models.HealthWarning:
			worst = models.HealthWarning
		}
	}
	return worst
}

func themeColor(status models.HealthStatus) string {
	switch status {
	case models.HealthCritical:
		return "D13438"
	case models.HealthWarning:
		return "FFB900"
	default:
		return "107C10"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
