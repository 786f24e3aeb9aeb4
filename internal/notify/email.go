package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// DefaultFromName is used when no sender display name is configured.
const DefaultFromName = "Wellbeing Safety"

// EscalationCategory tags every escalation email at the provider.
const EscalationCategory = "wellbeing-escalation"

// ErrRejected marks a send the provider refused outright. Retrying it cannot
// succeed, so the dispatcher stops early.
var ErrRejected = errors.New("notify: rejected by provider")

// EmailSender sends a rendered email. SendGrid, SES and the stub share it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text escalation email. Escalation mail never carries
// HTML, so there is nothing for a client to load remotely.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	Category string // risk level; reported alongside EscalationCategory
}

// SendGridSender sends escalation emails through SendGrid with open and click
// tracking switched off.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.message(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "category", msg.Category)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if err := statusError(response.StatusCode); err != nil {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "category", msg.Category)
		return err
	}

	s.logger.Debug("escalation email sent via sendgrid", "status", response.StatusCode, "category", msg.Category)
	return nil
}

func (s *SendGridSender) message(msg EmailMessage) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))

	m := mail.NewV3Mail().
		SetFrom(mail.NewEmail(s.fromName, s.fromEmail)).
		AddPersonalizations(p).
		AddContent(mail.NewContent("text/plain", msg.Body)).
		SetTrackingSettings(mail.NewTrackingSettings().
			SetClickTracking(mail.NewClickTrackingSetting().SetEnable(false).SetEnableText(false)).
			SetOpenTracking(mail.NewOpenTrackingSetting().SetEnable(false)))
	m.Subject = msg.Subject
	m.AddCategories(EscalationCategory)
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

// statusError maps a SendGrid response code. Throttling and server errors are
// worth retrying; other client errors are not.
func statusError(code int) error {
	switch {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("notify: sendgrid returned status %d", code)
	default:
		return fmt.Errorf("%w: sendgrid status %d", ErrRejected, code)
	}
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("no email provider; escalation email dropped", "subject", msg.Subject, "category", msg.Category)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
