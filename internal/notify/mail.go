package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"relaydesk/internal/config"
)

const smtpMaxRetries = 3

// SMTPMailer sends mail through a single SMTP relay. Transient send errors
// are retried with exponential backoff; delivery stays per-recipient.
type SMTPMailer struct {
	Addr          string
	From          string
	Auth          smtp.Auth
	SubjectPrefix string
}

// NewSMTPMailer builds a mailer from config. Returns nil when mail is disabled.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	if !cfg.Enabled {
		return nil
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		Addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		From:          cfg.From,
		Auth:          auth,
		SubjectPrefix: cfg.SubjectPrefix,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, toEmail, subject, body string) error {
	msg := m.compose(toEmail, subject, body)
	op := func() error {
		return smtp.SendMail(m.Addr, m.Auth, m.From, []string{toEmail}, msg)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), smtpMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("smtp send to %s: %w", toEmail, err)
	}
	return nil
}

func (m *SMTPMailer) compose(toEmail, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", toEmail)
	fmt.Fprintf(&b, "Subject: %s%s\r\n", m.SubjectPrefix, subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogMailer writes outgoing mail to the log instead of sending it. Used when
// mail is disabled so fan-out behavior stays observable in development.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, toEmail, subject, _ string) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("mail (disabled): to=%s subject=%q", toEmail, subject)
	return nil
}
