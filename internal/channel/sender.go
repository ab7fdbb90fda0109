// Package channel provides per-platform message delivery adapters and the
// fallback ordering used when a preferred channel fails.
package channel

import (
	"context"
	"errors"

	"github.com/keelhq/nurture/internal/models"
)

// ErrNoSender is returned when no sender is registered for a channel.
var ErrNoSender = errors.New("no sender registered for channel")

// Sender delivers one message to a recipient handle on a single platform.
// Implementations return an error on transport or auth failure.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// Registry maps channels to their senders.
type Registry struct {
	senders map[models.Channel]Sender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

// Register installs a sender for a channel, replacing any existing one.
func (r *Registry) Register(ch models.Channel, s Sender) {
	r.senders[ch] = s
}

// Get returns the sender for a channel.
func (r *Registry) Get(ch models.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// FallbackOrder returns the channels to attempt for a lead: the preferred
// channel first, then every other channel the lead has a usable contact
// handle for.
func FallbackOrder(lead *models.Lead, preferred models.Channel) []models.Channel {
	order := []models.Channel{preferred}
	for _, ch := range []models.Channel{models.ChannelInstagram, models.ChannelWhatsApp, models.ChannelEmail} {
		if ch == preferred {
			continue
		}
		if lead.ContactHandle(ch) != "" {
			order = append(order, ch)
		}
	}
	return order
}
