package session

import (
	"context"
	"errors"
	"log"
	"time"

	"studio-verifier/internal/models"
	"studio-verifier/internal/store"

	"github.com/google/uuid"
)

type State string

const (
	StateAwaiting State = "AWAITING"
	StateVerified State = "VERIFIED"
	StateMismatch State = "MISMATCH"
	StateTimedOut State = "TIMED_OUT"
)

// Event is one status observation surfaced to the caller. Confirmation is
// set on VERIFIED and MISMATCH; a MISMATCH confirmation carries both
// transaction ids plus the offending amount and sender so the caller can
// offer a corrective action.
type Event struct {
	State        State                `json:"state"`
	Attempt      int                  `json:"attempt"`
	Confirmation *models.Confirmation `json:"confirmation,omitempty"`
}

// Session is the bounded verification loop for a single claim. Each claim
// gets its own session with its own clock; cancelling or timing one out
// never affects another.
type Session struct {
	claimID     uuid.UUID
	store       store.Store
	hub         *Hub
	interval    time.Duration
	maxAttempts int
}

func New(claimID uuid.UUID, st store.Store, hub *Hub, interval time.Duration, maxAttempts int) *Session {
	return &Session{
		claimID:     claimID,
		store:       st,
		hub:         hub,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run starts the session and returns its event channel. The channel first
// carries an AWAITING event, then exactly one terminal event, and is then
// closed. Cancelling ctx stops the session early: the channel closes with
// no terminal event and the claim stays awaiting for the matching engine.
func (s *Session) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, 2)
	go s.loop(ctx, events)
	return events
}

func (s *Session) loop(ctx context.Context, events chan<- Event) {
	defer close(events)

	sub, unsubscribe := s.hub.Subscribe(s.claimID)
	defer unsubscribe()

	events <- Event{State: StateAwaiting}

	// The matching engine may have reconciled the claim before this
	// session existed; check once before settling into the loop.
	if conf, ok := s.lookup(ctx); ok {
		events <- terminalEvent(conf, 0)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	attempt := 1
	for {
		select {
		case <-ctx.Done():
			log.Printf("INFO: Verification session for claim %s cancelled by caller.", s.claimID)
			return

		case conf := <-sub:
			events <- terminalEvent(conf, attempt)
			return

		case <-ticker.C:
			if conf, ok := s.lookup(ctx); ok {
				events <- terminalEvent(conf, attempt)
				return
			}
			if attempt >= s.maxAttempts {
				// Budget spent. Stop the ticker before the final event so
				// nothing reads the store after the timeout surfaces.
				ticker.Stop()
				if err := s.store.MarkClaimTimedOut(ctx, s.claimID); err != nil {
					if errors.Is(err, store.ErrConflict) {
						// The matcher reconciled the claim between the last
						// lookup and the timeout mark. Its verdict stands;
						// surface it instead of the timeout.
						if conf, ok := s.lookup(ctx); ok {
							events <- terminalEvent(conf, attempt)
							return
						}
					} else {
						log.Printf("ERROR: Could not mark claim %s timed out: %v", s.claimID, err)
					}
				}
				log.Printf("WARN: Verification session for claim %s timed out after %d attempts.", s.claimID, attempt)
				events <- Event{State: StateTimedOut, Attempt: attempt}
				return
			}
			attempt++
		}
	}
}

func (s *Session) lookup(ctx context.Context) (*models.Confirmation, bool) {
	conf, err := s.store.LatestConfirmationForClaim(ctx, s.claimID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("ERROR: Confirmation lookup failed for claim %s: %v", s.claimID, err)
		}
		return nil, false
	}
	return conf, true
}

func terminalEvent(conf *models.Confirmation, attempt int) Event {
	state := StateMismatch
	if conf.Matched {
		state = StateVerified
	}
	return Event{State: state, Attempt: attempt, Confirmation: conf}
}
