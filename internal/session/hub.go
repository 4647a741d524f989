// Package session runs the per-claim verification state machines:
// AWAITING -> VERIFIED | MISMATCH | TIMED_OUT.
//
// Confirmations are delivered push-first through a Hub the matching engine
// publishes into; each session keeps a polling fallback so a confirmation
// written before the session subscribed (or by another process against the
// same database) is still picked up.
package session

import (
	"sync"

	"studio-verifier/internal/models"

	"github.com/google/uuid"
)

// Hub fans confirmations out to the sessions subscribed to their claim.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan *models.Confirmation]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan *models.Confirmation]struct{})}
}

// Subscribe returns a channel that receives confirmations for claimID and
// a cancel func the caller must invoke when done.
func (h *Hub) Subscribe(claimID uuid.UUID) (<-chan *models.Confirmation, func()) {
	ch := make(chan *models.Confirmation, 1)

	h.mu.Lock()
	set, ok := h.subs[claimID]
	if !ok {
		set = make(map[chan *models.Confirmation]struct{})
		h.subs[claimID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[claimID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, claimID)
			}
		}
	}
	return ch, cancel
}

// ConfirmationRecorded implements matcher.ConfirmationSink. Delivery is
// best-effort and never blocks the matching engine; a subscriber that
// already has a confirmation buffered falls back to its store poll.
func (h *Hub) ConfirmationRecorded(conf *models.Confirmation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[conf.ClaimID] {
		select {
		case ch <- conf:
		default:
		}
	}
}
