// Package brand supplies per-user brand/voice context injected into reply
// generation prompts.
package brand

import (
	"context"
	"fmt"
	"strings"

	"github.com/keelhq/nurture/internal/store"
)

// Context is the tone/voice information for one user's business.
type Context struct {
	BusinessName  string
	VoiceRules    string
	BrandSnippets []string
}

// ContextProvider resolves the brand context for a user.
type ContextProvider interface {
	GetBrandContext(ctx context.Context, userID string) (Context, error)
}

// defaultContext is used when a user has no brand profile yet.
var defaultContext = Context{
	BusinessName: "our team",
	VoiceRules:   "Friendly, concise, and helpful. No pressure tactics.",
}

// StoreProvider reads brand profiles from the persistence layer.
type StoreProvider struct {
	Store store.BrandStore
}

// Compile-time check that StoreProvider implements ContextProvider.
var _ ContextProvider = (*StoreProvider)(nil)

// GetBrandContext returns the user's brand profile, or a sensible default
// when none exists.
func (p *StoreProvider) GetBrandContext(ctx context.Context, userID string) (Context, error) {
	profile, err := p.Store.GetBrandProfile(userID)
	if err != nil {
		return Context{}, fmt.Errorf("load brand profile: %w", err)
	}
	if profile == nil {
		return defaultContext, nil
	}
	bc := Context{
		BusinessName:  profile.BusinessName,
		VoiceRules:    profile.VoiceRules,
		BrandSnippets: profile.BrandSnippets,
	}
	if bc.BusinessName == "" {
		bc.BusinessName = defaultContext.BusinessName
	}
	if bc.VoiceRules == "" {
		bc.VoiceRules = defaultContext.VoiceRules
	}
	return bc, nil
}

// SystemPrompt renders the context as the system prompt for reply generation.
func (c Context) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write short, natural outreach messages on behalf of %s.\n", c.BusinessName)
	fmt.Fprintf(&b, "Voice rules: %s\n", c.VoiceRules)
	if guide := BuildVoiceGuide(ExtractVoiceTags(c.VoiceRules)); guide != "" {
		b.WriteString(guide)
	}
	if len(c.BrandSnippets) > 0 {
		b.WriteString("Reference material:\n")
		for _, s := range c.BrandSnippets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("Never mention that you are automated. Keep replies under 80 words.")
	return b.String()
}
