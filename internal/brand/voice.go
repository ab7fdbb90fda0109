package brand

import "strings"

// Voice tags recognized inside a profile's voice rules. The whitelist is
// hard-coded so prompt injection through a profile cannot smuggle arbitrary
// instructions into the system prompt.
var allVoiceTags = []string{
	// Style
	"concise",
	"detailed",
	"formal",
	"casual",
	"playful",
	"no_emojis",
	"emojis_ok",
	// Call to action
	"soft_cta",
	"direct_cta",
	"question_closer",
}

// mutuallyExclusivePairs defines tags where at most one may be active. The
// tag appearing first in the rules wins.
var mutuallyExclusivePairs = [][2]string{
	{"concise", "detailed"},
	{"formal", "casual"},
	{"no_emojis", "emojis_ok"},
	{"soft_cta", "direct_cta"},
}

// voiceGuideLines maps each tag to its drafting instruction.
var voiceGuideLines = map[string]string{
	"concise":         "Keep it short: one or two sentences, no filler.",
	"detailed":        "Give a little more substance than usual, but stay under the word limit.",
	"formal":          "Use professional, polished language.",
	"casual":          "Write like a friendly text message, not a business letter.",
	"playful":         "A light, playful touch is welcome.",
	"no_emojis":       "Do NOT use emojis.",
	"emojis_ok":       "An occasional emoji is fine.",
	"soft_cta":        "End with a low-pressure invitation, never a hard ask.",
	"direct_cta":      "End with one clear, specific call to action.",
	"question_closer": "Close with a question that is easy to answer.",
}

// ExtractVoiceTags scans free-text voice rules for whitelisted tags, in
// whitelist order, with mutual exclusions resolved by rule-text position.
func ExtractVoiceTags(voiceRules string) []string {
	text := strings.ToLower(voiceRules)
	present := make(map[string]int) // tag -> first position in text
	for _, tag := range allVoiceTags {
		// Tags may be written with spaces instead of underscores.
		needle := strings.ReplaceAll(tag, "_", " ")
		if idx := strings.Index(text, needle); idx != -1 {
			present[tag] = idx
		} else if idx := strings.Index(text, tag); idx != -1 {
			present[tag] = idx
		}
	}

	for _, pair := range mutuallyExclusivePairs {
		ia, oka := present[pair[0]]
		ib, okb := present[pair[1]]
		if oka && okb {
			if ia <= ib {
				delete(present, pair[1])
			} else {
				delete(present, pair[0])
			}
		}
	}

	var tags []string
	for _, tag := range allVoiceTags {
		if _, ok := present[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// BuildVoiceGuide renders drafting instructions for the active tags.
// Returns an empty string when no tags are active.
func BuildVoiceGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Voice guide:\n")
	for _, tag := range tags {
		if line, ok := voiceGuideLines[tag]; ok {
			b.WriteString("- " + line + "\n")
		}
	}
	return b.String()
}
