package brand

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractVoiceTags(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		want  []string
	}{
		{
			name:  "plain tags",
			rules: "casual, playful, no emojis",
			want:  []string{"casual", "playful", "no_emojis"},
		},
		{
			name:  "underscore form",
			rules: "question_closer and soft_cta",
			want:  []string{"soft_cta", "question_closer"},
		},
		{
			name:  "unknown words ignored",
			rules: "friendly, upbeat, concise",
			want:  []string{"concise"},
		},
		{
			name:  "empty rules",
			rules: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVoiceTags(tt.rules)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVoiceTags(%q) = %v, want %v", tt.rules, got, tt.want)
			}
		})
	}
}

func TestExtractVoiceTagsMutualExclusion(t *testing.T) {
	// The tag appearing first in the rules wins its pair.
	got := ExtractVoiceTags("formal but casual")
	for _, tag := range got {
		if tag == "casual" {
			t.Errorf("expected formal to win over casual, got %v", got)
		}
	}
	if len(got) != 1 || got[0] != "formal" {
		t.Errorf("expected [formal], got %v", got)
	}

	got = ExtractVoiceTags("detailed yet concise")
	if len(got) != 1 || got[0] != "detailed" {
		t.Errorf("expected [detailed], got %v", got)
	}
}

func TestBuildVoiceGuide(t *testing.T) {
	guide := BuildVoiceGuide([]string{"concise", "no_emojis"})
	if !strings.Contains(guide, "Keep it short") {
		t.Errorf("expected concise instruction in guide: %q", guide)
	}
	if !strings.Contains(guide, "Do NOT use emojis") {
		t.Errorf("expected emoji instruction in guide: %q", guide)
	}

	if got := BuildVoiceGuide(nil); got != "" {
		t.Errorf("expected empty guide for no tags, got %q", got)
	}
}

func TestSystemPromptIncludesVoiceGuide(t *testing.T) {
	c := Context{
		BusinessName: "Acme Fitness",
		VoiceRules:   "casual, no emojis",
	}
	prompt := c.SystemPrompt()
	if !strings.Contains(prompt, "Acme Fitness") {
		t.Errorf("expected business name in prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Voice guide:") {
		t.Errorf("expected voice guide section in prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Do NOT use emojis") {
		t.Errorf("expected emoji rule in prompt: %q", prompt)
	}
}
