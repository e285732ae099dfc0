// Package email sends the end-of-event summary to the organizer. Sending is
// best-effort: a failed mail never blocks ending an event.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

// Provider defines the interface for email providers
type Provider interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// Config holds email service configuration
type Config struct {
	// Provider type: "sendgrid" or "smtp"
	Provider string

	FromEmail string
	FromName  string

	// SendGrid configuration
	SendGridAPIKey string

	// SMTP configuration (for Mailhog or other SMTP servers)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
}

// DefaultConfig returns a default configuration for development (Mailhog)
func DefaultConfig() *Config {
	return &Config{
		Provider:   "smtp",
		FromEmail:  "noreply@caterbase.com",
		FromName:   "CaterPOS",
		SMTPHost:   "localhost",
		SMTPPort:   1025, // Mailhog default port
		SMTPUseTLS: false,
	}
}

// Service renders and sends the event summary mail.
type Service struct {
	config   *Config
	provider Provider
	tmpl     *template.Template
	log      *zap.Logger
}

func NewService(config *Config, log *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Service{
		config: config,
		tmpl:   template.Must(template.New("summary").Parse(summaryTemplate)),
		log:    log,
	}

	switch config.Provider {
	case "sendgrid":
		if config.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SendGrid API key is required")
		}
		s.provider = NewSendGridProvider(config.SendGridAPIKey, config.FromEmail, config.FromName)
	case "smtp":
		s.provider = NewSMTPProvider(
			config.SMTPHost,
			config.SMTPPort,
			config.SMTPUsername,
			config.SMTPPassword,
			config.FromEmail,
			config.FromName,
			config.SMTPUseTLS,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", config.Provider)
	}

	return s, nil
}

type categoryRow struct {
	Category string
	Amount   string
}

type hourRow struct {
	Hour   string
	Amount string
}

// SendSummary mails the organizer the final numbers for an ended event.
func (s *Service) SendSummary(ctx context.Context, to string, event *domain.Event, summary *domain.EventSummary) error {
	data := map[string]interface{}{
		"EventName":  event.Name,
		"StartedAt":  event.StartedAt.Format("2006-01-02 15:04"),
		"Total":      formatMinorUnits(summary.TotalMinorUnits),
		"ItemCount":  summary.ItemCount,
		"TabCount":   summary.TabCount,
		"Categories": categoryRows(summary.ByCategory),
		"Hours":      hourRows(summary.ByHour),
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	subject := fmt.Sprintf("Event summary: %s", event.Name)
	s.log.Info("Sending event summary",
		zap.String("to", to),
		zap.String("event_id", event.ID),
	)

	if err := s.provider.Send(ctx, to, subject, buf.String(), true); err != nil {
		s.log.Error("Failed to send event summary",
			zap.String("to", to),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send event summary: %w", err)
	}
	return nil
}

func categoryRows(byCategory map[string]int64) []categoryRow {
	rows := make([]categoryRow, 0, len(byCategory))
	for category, amount := range byCategory {
		rows = append(rows, categoryRow{Category: category, Amount: formatMinorUnits(amount)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows
}

func hourRows(byHour map[string]int64) []hourRow {
	rows := make([]hourRow, 0, len(byHour))
	for hour, amount := range byHour {
		rows = append(rows, hourRow{Hour: hour, Amount: formatMinorUnits(amount)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Hour < rows[j].Hour })
	return rows
}

func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
