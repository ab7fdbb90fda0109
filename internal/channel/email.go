package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/keelhq/nurture/internal/util"
	"gopkg.in/gomail.v2"
)

// EmailOpts holds configuration options for the SMTP email sender.
type EmailOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// EmailOption defines a configuration option for the email sender.
type EmailOption func(*EmailOpts)

// WithSMTPHost sets the SMTP server host.
func WithSMTPHost(host string) EmailOption {
	return func(o *EmailOpts) { o.Host = host }
}

// WithSMTPPort sets the SMTP server port.
func WithSMTPPort(port int) EmailOption {
	return func(o *EmailOpts) { o.Port = port }
}

// WithSMTPCredentials sets the SMTP username and password.
func WithSMTPCredentials(username, password string) EmailOption {
	return func(o *EmailOpts) {
		o.Username = username
		o.Password = password
	}
}

// WithFromAddress sets the From header.
func WithFromAddress(from string) EmailOption {
	return func(o *EmailOpts) { o.From = from }
}

// WithSubject sets the subject line for outbound messages.
func WithSubject(subject string) EmailOption {
	return func(o *EmailOpts) { o.Subject = subject }
}

// EmailSender delivers messages over SMTP.
type EmailSender struct {
	dialer  *gomail.Dialer
	from    string
	subject string
}

// Compile-time check that EmailSender implements Sender.
var _ Sender = (*EmailSender)(nil)

// NewEmailSender creates an SMTP email sender. Options fall back to the
// SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, and SMTP_FROM
// environment variables.
func NewEmailSender(opts ...EmailOption) (*EmailSender, error) {
	var cfg EmailOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		cfg.Host = os.Getenv("SMTP_HOST")
	}
	if cfg.Port == 0 {
		cfg.Port = util.ParseIntEnv("SMTP_PORT", 587)
	}
	if cfg.Username == "" {
		cfg.Username = os.Getenv("SMTP_USERNAME")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("SMTP_PASSWORD")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("SMTP_FROM")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from address must be provided")
	}
	if cfg.Subject == "" {
		cfg.Subject = "Following up"
	}

	return &EmailSender{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		subject: cfg.Subject,
	}, nil
}

// Send delivers a plain-text email.
func (s *EmailSender) Send(ctx context.Context, recipient, body string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || !strings.Contains(recipient, "@") {
		return fmt.Errorf("invalid email recipient %q", recipient)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", s.subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		slog.Error("EmailSender.Send failed", "to", recipient, "error", err)
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}
	slog.Debug("EmailSender.Send succeeded", "to", recipient)
	return nil
}
