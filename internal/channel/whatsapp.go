package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// WhatsAppOpts holds configuration options for the Twilio WhatsApp sender.
type WhatsAppOpts struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp number in "whatsapp:+1234567890" format
}

// WhatsAppOption defines a configuration option for the WhatsApp sender.
type WhatsAppOption func(*WhatsAppOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending WhatsApp number.
func WithFromNumber(from string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.From = from }
}

// WhatsAppSender delivers messages through the Twilio WhatsApp API.
type WhatsAppSender struct {
	client *twilio.RestClient
	from   string
}

// Compile-time check that WhatsAppSender implements Sender.
var _ Sender = (*WhatsAppSender)(nil)

// NewWhatsAppSender creates a Twilio-backed WhatsApp sender. Options fall
// back to the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER
// environment variables.
func NewWhatsAppSender(opts ...WhatsAppOption) (*WhatsAppSender, error) {
	var cfg WhatsAppOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &WhatsAppSender{client: client, from: cfg.From}, nil
}

// CanonicalizePhone validates a phone number and reduces it to digits only.
// At least 6 digits are required.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// Send delivers a WhatsApp message via the Twilio API.
func (s *WhatsAppSender) Send(ctx context.Context, recipient, body string) error {
	to, err := CanonicalizePhone(recipient)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("WhatsAppSender.Send failed", "to", to, "error", err)
		return fmt.Errorf("failed to send whatsapp message to %s: %w", to, err)
	}
	slog.Debug("WhatsAppSender.Send succeeded", "to", to)
	return nil
}
