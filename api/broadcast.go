package api

import (
	"github.com/drawsync/drawsync/internal/slogging"
)

// BroadcastResult captures per-recipient outcomes of one fan-out. This is
// fire-and-forget delivery, not atomic multicast: one recipient failing never
// aborts delivery to the rest, and there is no acknowledgement.
type BroadcastResult struct {
	// Delivered counts recipients whose send buffer accepted the message.
	Delivered int
	// Failed counts recipients whose send buffer was full or closed.
	Failed int
	// Skipped counts sessions not in the Open state.
	Skipped int
}

// Broadcaster fans a message out to every open session except an excluded
// origin.
type Broadcaster struct {
	registry *SessionRegistry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *SessionRegistry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast attempts delivery of raw message bytes to every open session
// except exclude (pass nil to reach all sessions). Each recipient's outcome
// is captured independently; delivery order is registry iteration order with
// no cross-recipient ordering guarantee.
func (b *Broadcaster) Broadcast(data []byte, exclude *Session) BroadcastResult {
	var result BroadcastResult

	for _, s := range b.registry.Sessions() {
		if s == exclude {
			continue
		}
		if s.State() != SessionOpen {
			result.Skipped++
			continue
		}
		if s.enqueue(data) {
			result.Delivered++
		} else {
			result.Failed++
			slogging.Get().Warn("broadcast to session %s failed: send buffer full or closed", s.ID)
		}
	}

	metricBroadcastDelivered.Add(float64(result.Delivered))
	metricBroadcastFailed.Add(float64(result.Failed))

	if result.Failed > 0 {
		slogging.Get().Warn("broadcast complete: %d sent, %d failed", result.Delivered, result.Failed)
	} else {
		slogging.Get().Debug("broadcast complete: %d sent", result.Delivered)
	}

	return result
}
