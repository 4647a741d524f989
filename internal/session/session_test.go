package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"studio-verifier/internal/models"
	"studio-verifier/internal/store"

	"github.com/google/uuid"
)

func seedAwaitingClaim(t *testing.T, st store.Store) *models.PaymentClaim {
	t.Helper()
	c := &models.PaymentClaim{
		ID:                   uuid.New(),
		Amount:               50000,
		ClaimedTransactionID: "ABC123",
		SubmittedAt:          time.Now().UTC(),
		Status:               models.ClaimAwaiting,
	}
	if err := st.SaveClaim(context.Background(), c); err != nil {
		t.Fatalf("SaveClaim: %v", err)
	}
	return c
}

func confirmationFor(claim *models.PaymentClaim, matched bool) *models.Confirmation {
	return &models.Confirmation{
		ID:                   uuid.New(),
		ClaimID:              claim.ID,
		PaymentID:            uuid.New(),
		ClaimedTransactionID: claim.ClaimedTransactionID,
		ActualTransactionID:  "XYZ999",
		Amount:               claim.Amount,
		SenderName:           "JOHN DOE",
		Matched:              matched,
		ConfirmedAt:          time.Now().UTC(),
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return Event{}
}

func expectClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel, got event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestSessionVerifiedViaPush(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	// Interval far in the future: only the push path can terminate.
	s := New(claim.ID, st, hub, time.Hour, 60)
	events := s.Run(context.Background())

	if ev := nextEvent(t, events); ev.State != StateAwaiting {
		t.Fatalf("first event: got %q, want %q", ev.State, StateAwaiting)
	}

	hub.ConfirmationRecorded(confirmationFor(claim, true))

	ev := nextEvent(t, events)
	if ev.State != StateVerified {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateVerified)
	}
	if ev.Confirmation == nil || !ev.Confirmation.Matched {
		t.Error("verified event must carry the matched confirmation")
	}
	expectClosed(t, events)
}

func TestSessionMismatchCarriesBothIDs(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	s := New(claim.ID, st, hub, time.Hour, 60)
	events := s.Run(context.Background())
	nextEvent(t, events) // AWAITING

	hub.ConfirmationRecorded(confirmationFor(claim, false))

	ev := nextEvent(t, events)
	if ev.State != StateMismatch {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateMismatch)
	}
	conf := ev.Confirmation
	if conf == nil {
		t.Fatal("mismatch event must carry the confirmation")
	}
	if conf.ClaimedTransactionID != "ABC123" || conf.ActualTransactionID != "XYZ999" {
		t.Errorf("mismatch must surface both ids, got claimed=%q actual=%q",
			conf.ClaimedTransactionID, conf.ActualTransactionID)
	}
	if conf.Amount != 50000 || conf.SenderName == "" {
		t.Error("mismatch must surface the offending amount and sender")
	}
	expectClosed(t, events)
}

func TestSessionFindsPreexistingConfirmation(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	// Reconcile before the session exists.
	payment := &models.IncomingPayment{
		ID:            uuid.New(),
		Amount:        claim.Amount,
		SenderName:    "JOHN DOE",
		TransactionID: claim.ClaimedTransactionID,
		Provider:      models.ProviderMTN,
		ReceivedAt:    claim.SubmittedAt.Add(time.Second),
		Status:        models.PaymentPending,
	}
	if err := st.SavePayment(context.Background(), payment); err != nil {
		t.Fatalf("SavePayment: %v", err)
	}
	conf := confirmationFor(claim, true)
	conf.PaymentID = payment.ID
	if err := st.Link(context.Background(), conf); err != nil {
		t.Fatalf("Link: %v", err)
	}

	s := New(claim.ID, st, hub, time.Hour, 60)
	events := s.Run(context.Background())

	nextEvent(t, events) // AWAITING
	if ev := nextEvent(t, events); ev.State != StateVerified {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateVerified)
	}
	expectClosed(t, events)
}

func TestSessionPollingFallback(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	s := New(claim.ID, st, hub, 5*time.Millisecond, 200)
	events := s.Run(context.Background())
	nextEvent(t, events) // AWAITING

	// Write the confirmation straight to the store, bypassing the hub, as
	// another process sharing the database would.
	payment := &models.IncomingPayment{
		ID:            uuid.New(),
		Amount:        claim.Amount,
		SenderName:    "JOHN DOE",
		TransactionID: claim.ClaimedTransactionID,
		Provider:      models.ProviderMTN,
		ReceivedAt:    claim.SubmittedAt.Add(time.Second),
		Status:        models.PaymentPending,
	}
	st.SavePayment(context.Background(), payment)
	conf := confirmationFor(claim, true)
	conf.PaymentID = payment.ID
	if err := st.Link(context.Background(), conf); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if ev := nextEvent(t, events); ev.State != StateVerified {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateVerified)
	}
	expectClosed(t, events)
}

func TestSessionTimesOut(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	s := New(claim.ID, st, hub, 2*time.Millisecond, 3)
	events := s.Run(context.Background())

	nextEvent(t, events) // AWAITING
	ev := nextEvent(t, events)
	if ev.State != StateTimedOut {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateTimedOut)
	}
	if ev.Attempt != 3 {
		t.Errorf("attempts: got %d, want 3", ev.Attempt)
	}
	expectClosed(t, events)

	got, err := st.Claim(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.Status != models.ClaimTimedOut {
		t.Errorf("claim status: got %q, want %q", got.Status, models.ClaimTimedOut)
	}
}

// raceLinkStore reconciles the claim inside the timeout-mark window, the
// narrowest interleaving a concurrent matching tick can produce.
type raceLinkStore struct {
	store.Store
	conf *models.Confirmation
	once sync.Once
}

func (s *raceLinkStore) MarkClaimTimedOut(ctx context.Context, claimID uuid.UUID) error {
	s.once.Do(func() {
		if err := s.Store.Link(ctx, s.conf); err != nil {
			panic(err)
		}
	})
	return s.Store.MarkClaimTimedOut(ctx, claimID)
}

func TestSessionTimeoutLosesToConcurrentMatch(t *testing.T) {
	mem := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, mem)

	payment := &models.IncomingPayment{
		ID:            uuid.New(),
		Amount:        claim.Amount,
		SenderName:    "JOHN DOE",
		TransactionID: claim.ClaimedTransactionID,
		Provider:      models.ProviderMTN,
		ReceivedAt:    claim.SubmittedAt.Add(time.Second),
		Status:        models.PaymentPending,
	}
	if err := mem.SavePayment(context.Background(), payment); err != nil {
		t.Fatalf("SavePayment: %v", err)
	}
	conf := confirmationFor(claim, true)
	conf.PaymentID = payment.ID

	st := &raceLinkStore{Store: mem, conf: conf}
	s := New(claim.ID, st, hub, 2*time.Millisecond, 1)
	events := s.Run(context.Background())

	nextEvent(t, events) // AWAITING
	ev := nextEvent(t, events)
	if ev.State != StateVerified {
		t.Fatalf("terminal event: got %q, want %q", ev.State, StateVerified)
	}
	if ev.Confirmation == nil || !ev.Confirmation.Matched {
		t.Error("the concurrent match's confirmation must surface on the stream")
	}
	expectClosed(t, events)

	got, _ := mem.Claim(context.Background(), claim.ID)
	if got.Status != models.ClaimVerified {
		t.Errorf("claim status: got %q, want %q", got.Status, models.ClaimVerified)
	}
}

func TestSessionCancellation(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claim := seedAwaitingClaim(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(claim.ID, st, hub, time.Hour, 60)
	events := s.Run(ctx)

	nextEvent(t, events) // AWAITING
	cancel()
	// Cancellation closes the stream with no terminal event.
	expectClosed(t, events)

	got, _ := st.Claim(context.Background(), claim.ID)
	if got.Status != models.ClaimAwaiting {
		t.Errorf("cancelled session must leave the claim awaiting, got %q", got.Status)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	st := store.NewMemory()
	hub := NewHub()
	claimA := seedAwaitingClaim(t, st)
	claimB := seedAwaitingClaim(t, st)

	eventsA := New(claimA.ID, st, hub, 2*time.Millisecond, 2).Run(context.Background())
	eventsB := New(claimB.ID, st, hub, time.Hour, 60).Run(context.Background())

	nextEvent(t, eventsA) // AWAITING
	nextEvent(t, eventsB) // AWAITING

	// A times out; B must be unaffected and still react to its own push.
	if ev := nextEvent(t, eventsA); ev.State != StateTimedOut {
		t.Fatalf("session A: got %q, want %q", ev.State, StateTimedOut)
	}

	hub.ConfirmationRecorded(confirmationFor(claimB, true))
	if ev := nextEvent(t, eventsB); ev.State != StateVerified {
		t.Fatalf("session B: got %q, want %q", ev.State, StateVerified)
	}
}
