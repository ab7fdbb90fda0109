package conversation

import (
	"math/rand/v2"
	"time"

	"github.com/keelhq/nurture/internal/models"
)

// MessageKind distinguishes an immediate reply from a scheduled follow-up for
// delay calculation.
type MessageKind string

const (
	KindReply    MessageKind = "reply"
	KindFollowUp MessageKind = "followup"
)

// Delay bounds. Fixed delays are detectable as automation, so every branch
// randomizes within a documented window.
const (
	followUpBase   = 6 * time.Hour
	followUpSpread = 6 * time.Hour
	followUpJitter = 60 * time.Minute

	activeReplyBase   = 50 * time.Second
	activeReplySpread = 10 * time.Second

	idleReplyBase   = 2 * time.Minute
	idleReplySpread = 2 * time.Minute

	// instagramMinGap enforces the platform outbound ceiling of roughly 20
	// messages per hour: never faster than one message per 3 minutes.
	instagramMinGap = 3 * time.Minute

	// activeReplyWindow is the maximum gap between our last outbound message
	// and the lead's inbound answer for the lead to count as actively replying.
	activeReplyWindow = 5 * time.Minute
)

// followUpSchedule maps follow-up ordinals to base delays before the next
// attempt. Ordinals past the end reuse the final entry.
var followUpSchedule = []time.Duration{
	2 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
	72 * time.Hour,
	7 * 24 * time.Hour,
}

// followUpScheduleJitter is the multiplicative jitter applied to schedule
// entries so mass follow-ups don't fire in lockstep.
const followUpScheduleJitter = 0.15

// ReplyDelay computes how long to wait before sending an automated message of
// the given kind to a lead on the given channel. msgs must be ordered
// ascending by CreatedAt. rng may be nil, in which case the shared
// math/rand/v2 source is used; tests inject a seeded source to assert bounds
// deterministically.
func ReplyDelay(kind MessageKind, msgs []models.Message, ch models.Channel, rng *rand.Rand) time.Duration {
	if kind == KindFollowUp {
		return followUpBase + randDuration(rng, followUpSpread) + randDuration(rng, followUpJitter)
	}

	if isActivelyReplying(msgs) {
		d := activeReplyBase + randDuration(rng, activeReplySpread)
		if ch == models.ChannelInstagram && d < instagramMinGap {
			d = instagramMinGap
		}
		return d
	}

	return idleReplyBase + randDuration(rng, idleReplySpread)
}

// NextFollowUpDelay returns the delay before follow-up number ordinal
// (0-based), drawn from the fixed schedule with ±15% multiplicative jitter.
func NextFollowUpDelay(ordinal int, rng *rand.Rand) time.Duration {
	base := followUpSchedule[len(followUpSchedule)-1]
	if ordinal >= 0 && ordinal < len(followUpSchedule) {
		base = followUpSchedule[ordinal]
	}
	factor := 1 - followUpScheduleJitter + randFloat(rng)*2*followUpScheduleJitter
	return time.Duration(float64(base) * factor)
}

// isActivelyReplying reports whether the two most recent messages are, in
// order, an outbound then an inbound message with a gap under five minutes.
func isActivelyReplying(msgs []models.Message) bool {
	if len(msgs) < 2 {
		return false
	}
	prev, last := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if prev.Direction != models.DirectionOutbound || last.Direction != models.DirectionInbound {
		return false
	}
	return last.CreatedAt.Sub(prev.CreatedAt) < activeReplyWindow
}

func randDuration(rng *rand.Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if rng == nil {
		return time.Duration(rand.Int64N(int64(max)))
	}
	return time.Duration(rng.Int64N(int64(max)))
}

func randFloat(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}
