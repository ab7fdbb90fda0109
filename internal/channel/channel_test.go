package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keelhq/nurture/internal/models"
)

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain digits", input: "15551234567", want: "15551234567"},
		{name: "formatted number", input: "+1 (555) 123-4567", want: "15551234567"},
		{name: "whatsapp prefix", input: "whatsapp:+15551234567", want: "15551234567"},
		{name: "empty", input: "", wantErr: true},
		{name: "no digits", input: "not-a-number", wantErr: true},
		{name: "too short", input: "12345", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizePhone(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CanonicalizePhone(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalizePhone(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFallbackOrder(t *testing.T) {
	lead := &models.Lead{
		ExternalID: "ig-123",
		Email:      "lead@example.com",
		Phone:      "+15551234567",
	}
	order := FallbackOrder(lead, models.ChannelWhatsApp)
	want := []models.Channel{models.ChannelWhatsApp, models.ChannelInstagram, models.ChannelEmail}
	if len(order) != len(want) {
		t.Fatalf("expected %d channels, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestFallbackOrderSkipsMissingHandles(t *testing.T) {
	lead := &models.Lead{ExternalID: "ig-123"} // no email, no phone
	order := FallbackOrder(lead, models.ChannelInstagram)
	if len(order) != 1 {
		t.Fatalf("expected only the preferred channel, got %v", order)
	}
	if order[0] != models.ChannelInstagram {
		t.Errorf("expected instagram first, got %s", order[0])
	}
}

func TestFallbackOrderPreferredAlwaysFirst(t *testing.T) {
	lead := &models.Lead{Email: "lead@example.com", Phone: "+15551234567"}
	// Preferred channel leads the order even when the lead has no handle
	// for it; the sender reports the failure and fallback takes over.
	order := FallbackOrder(lead, models.ChannelInstagram)
	if order[0] != models.ChannelInstagram {
		t.Errorf("expected preferred channel first, got %s", order[0])
	}
	if len(order) != 3 {
		t.Errorf("expected 3 channels, got %v", order)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get(models.ChannelEmail); ok {
		t.Error("expected empty registry to have no email sender")
	}
	sender := &InstagramSender{}
	reg.Register(models.ChannelInstagram, sender)
	got, ok := reg.Get(models.ChannelInstagram)
	if !ok || got != Sender(sender) {
		t.Error("expected registered sender to be returned")
	}
}

func TestInstagramSenderSend(t *testing.T) {
	var gotPath string
	var gotPayload map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender, err := NewInstagramSender(
		WithAccessToken("test-token"),
		WithAccountID("acct-1"),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("failed to create sender: %v", err)
	}

	if err := sender.Send(context.Background(), "user-42", "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotPath != "/acct-1/messages" {
		t.Errorf("expected path /acct-1/messages, got %s", gotPath)
	}
	var recipient struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(gotPayload["recipient"], &recipient); err != nil {
		t.Fatalf("failed to decode recipient: %v", err)
	}
	if recipient.ID != "user-42" {
		t.Errorf("expected recipient user-42, got %s", recipient.ID)
	}
}

func TestInstagramSenderSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender, err := NewInstagramSender(
		WithAccessToken("bad-token"),
		WithAccountID("acct-1"),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("failed to create sender: %v", err)
	}
	if err := sender.Send(context.Background(), "user-42", "hello"); err == nil {
		t.Error("expected error on non-2xx response")
	}
}

func TestInstagramSenderRequiresCredentials(t *testing.T) {
	t.Setenv("INSTAGRAM_ACCESS_TOKEN", "")
	t.Setenv("INSTAGRAM_ACCOUNT_ID", "")
	if _, err := NewInstagramSender(); err == nil {
		t.Error("expected error when credentials are missing")
	}
}

func TestEmailSenderRejectsInvalidRecipient(t *testing.T) {
	sender, err := NewEmailSender(
		WithSMTPHost("smtp.example.com"),
		WithFromAddress("noreply@example.com"),
	)
	if err != nil {
		t.Fatalf("failed to create sender: %v", err)
	}
	if err := sender.Send(context.Background(), "not-an-address", "hello"); err == nil {
		t.Error("expected error for recipient without @")
	}
	if err := sender.Send(context.Background(), "", "hello"); err == nil {
		t.Error("expected error for empty recipient")
	}
}
