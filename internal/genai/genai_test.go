package genai

import (
	"context"
	"errors"
	"testing"
)

// stubGenerator returns a canned reply or error.
type stubGenerator struct {
	reply Reply
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Reply, error) {
	return s.reply, s.err
}

func TestSafeGeneratorPassesThrough(t *testing.T) {
	sg := &SafeGenerator{Inner: &stubGenerator{reply: Reply{Text: "hello there", TokensUsed: 12}}}
	got, err := sg.Generate(context.Background(), "sys", "user", GenerateOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "hello there" || got.TokensUsed != 12 {
		t.Errorf("unexpected reply: %+v", got)
	}
}

func TestSafeGeneratorFallsBackOnError(t *testing.T) {
	sg := &SafeGenerator{
		Inner:    &stubGenerator{err: errors.New("provider down")},
		Fallback: "we'll be right with you",
	}
	got, err := sg.Generate(context.Background(), "sys", "user", GenerateOpts{})
	if err != nil {
		t.Fatalf("SafeGenerator must not return errors, got: %v", err)
	}
	if got.Text != "we'll be right with you" {
		t.Errorf("expected configured fallback, got %q", got.Text)
	}
}

func TestSafeGeneratorFallsBackOnEmptyReply(t *testing.T) {
	sg := &SafeGenerator{Inner: &stubGenerator{}}
	got, err := sg.Generate(context.Background(), "sys", "user", GenerateOpts{})
	if err != nil {
		t.Fatalf("SafeGenerator must not return errors, got: %v", err)
	}
	if got.Text != DefaultFallbackReply {
		t.Errorf("expected default fallback, got %q", got.Text)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when no API key is configured")
	}
}
