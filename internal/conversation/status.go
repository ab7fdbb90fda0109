// Package conversation provides pure conversation-analysis logic: lead
// lifecycle status detection from message history, lead warmth assessment,
// and randomized human-like delay calculation for outbound sends.
//
// Nothing in this package performs I/O; callers decide whether to commit the
// results.
package conversation

import (
	"strings"
	"time"

	"github.com/keelhq/nurture/internal/models"
)

// Detection is the result of classifying a lead's message history.
type Detection struct {
	Status         models.LeadStatus
	Confidence     float64
	ShouldUseVoice bool
}

// CommitThreshold is the minimum confidence at which a detected status is
// committed to the lead record. Lower-confidence detections are logged by the
// caller and discarded.
const CommitThreshold = 0.7

// recentWindow is how many trailing messages are scanned for keywords.
const recentWindow = 5

// replyRecency is how fresh an inbound message must be to count as a reply.
const replyRecency = 24 * time.Hour

// coldAfter is how long a lead may go without an inbound message before
// being considered cold.
const coldAfter = 3 * 24 * time.Hour

// rejectionKeywords mark a lead as explicitly not interested. This check
// dominates all others.
var rejectionKeywords = []string{
	"not interested",
	"no thanks",
	"remove me",
	"stop",
	"unsubscribe",
	"leave me alone",
}

// conversionKeywords signal buying intent.
var conversionKeywords = []string{
	"yes",
	"book",
	"schedule",
	"ready",
	"let's do it",
	"sign me up",
	"interested",
	"when can we",
}

// DetectStatus derives a lead's lifecycle status from its message history.
// msgs must be ordered ascending by CreatedAt. The function is pure: the same
// history and clock always yield the same detection.
func DetectStatus(msgs []models.Message, now time.Time) Detection {
	if len(msgs) == 0 {
		return Detection{Status: models.LeadStatusNew, Confidence: 1.0}
	}

	recent := msgs
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	if containsAny(recent, rejectionKeywords) {
		return Detection{Status: models.LeadStatusNotInterested, Confidence: 0.9}
	}

	inbound := inboundCount(msgs)
	engaged := inbound >= 2

	if engaged && containsAny(recent, conversionKeywords) {
		return Detection{Status: models.LeadStatusConverted, Confidence: 0.85, ShouldUseVoice: true}
	}

	lastIn, hasInbound := lastInboundAt(msgs)

	if engaged && hasInbound && now.Sub(lastIn) <= replyRecency {
		return Detection{Status: models.LeadStatusReplied, Confidence: 0.8, ShouldUseVoice: true}
	}

	if engaged {
		return Detection{Status: models.LeadStatusOpen, Confidence: 0.7}
	}

	if hasInbound && now.Sub(lastIn) > coldAfter {
		return Detection{Status: models.LeadStatusCold, Confidence: 0.75}
	}

	return Detection{Status: models.LeadStatusOpen, Confidence: 0.6}
}

// ShouldCommit reports whether a detection should be written to a lead whose
// current status is current. Detections below CommitThreshold are discarded,
// and terminal statuses are never silently regressed: once a lead is
// converted or not_interested, only a matching detection passes.
func ShouldCommit(current models.LeadStatus, d Detection) bool {
	if d.Confidence < CommitThreshold {
		return false
	}
	if current.IsTerminal() && d.Status != current {
		return false
	}
	return d.Status != current
}

// AssessWarmth reports whether a lead is "warm": at least 3 total messages
// and either 2+ inbound messages, or a fresh inbound message (within 24h)
// when at least one inbound message exists at all.
//
// This heuristic deliberately uses different thresholds than DetectStatus and
// is kept as a separate function; callers use it as an engagement signal, not
// a lifecycle status.
func AssessWarmth(msgs []models.Message, now time.Time) bool {
	if len(msgs) < 3 {
		return false
	}
	inbound := inboundCount(msgs)
	if inbound >= 2 {
		return true
	}
	if inbound >= 1 {
		if lastIn, ok := lastInboundAt(msgs); ok && now.Sub(lastIn) <= replyRecency {
			return true
		}
	}
	return false
}

func containsAny(msgs []models.Message, keywords []string) bool {
	for _, m := range msgs {
		body := strings.ToLower(m.Body)
		for _, kw := range keywords {
			if strings.Contains(body, kw) {
				return true
			}
		}
	}
	return false
}

func inboundCount(msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Direction == models.DirectionInbound {
			n++
		}
	}
	return n
}

func lastInboundAt(msgs []models.Message) (time.Time, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == models.DirectionInbound {
			return msgs[i].CreatedAt, true
		}
	}
	return time.Time{}, false
}
