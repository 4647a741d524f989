package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio-verifier/internal/matcher"
	"studio-verifier/internal/models"
	"studio-verifier/internal/session"
	"studio-verifier/internal/sms"
	"studio-verifier/internal/store"

	"github.com/google/uuid"
)

func newTestVerifier(t *testing.T) (*Verifier, *matcher.Engine, store.Store) {
	t.Helper()
	st := store.NewMemory()
	hub := session.NewHub()
	engine := matcher.New(st, time.Second, hub)
	v := NewVerifier(st, engine, hub, nil, 5*time.Millisecond, 60)
	return v, engine, st
}

func TestSubmitClaimValidation(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		amount  int64
		txID    string
		wantErr error
	}{
		{"zero amount", 0, "ABC123", ErrInvalidAmount},
		{"negative amount", -500, "ABC123", ErrInvalidAmount},
		{"blank transaction id", 50000, "   ", ErrMissingTransactionID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.SubmitClaim(ctx, tc.amount, tc.txID); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Rejected claims never enter the registry.
	claims, err := v.Claims(ctx, "")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("expected empty registry, got %d claims", len(claims))
	}
}

func TestIngestParseFailureIsNonFatal(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	ctx := context.Background()

	if _, err := v.Ingest(ctx, "missing everything", models.ProviderMTN); err == nil {
		t.Fatal("expected parse error")
	} else {
		var parseErr *sms.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected *sms.ParseError, got %v", err)
		}
	}

	// The pipeline keeps working for the next message.
	p, err := v.Ingest(ctx,
		"You have received UGX 50,000 from JOHN DOE 256781234567. Transaction ID: MTN123. Balance: UGX 1.",
		models.ProviderMTN)
	if err != nil {
		t.Fatalf("Ingest after failure: %v", err)
	}

	payments, _ := v.Payments(ctx, models.PaymentPending)
	if len(payments) != 1 || payments[0].ID != p.ID {
		t.Fatalf("expected exactly the one parsed payment, got %d", len(payments))
	}
}

func TestClaimVerifiedEndToEnd(t *testing.T) {
	v, engine, _ := newTestVerifier(t)
	ctx := context.Background()

	claim, err := v.SubmitClaim(ctx, 50000, "MTN123")
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	events, err := v.StartVerification(ctx, claim.ID)
	if err != nil {
		t.Fatalf("StartVerification: %v", err)
	}
	if ev := <-events; ev.State != session.StateAwaiting {
		t.Fatalf("first event: got %q, want %q", ev.State, session.StateAwaiting)
	}

	if _, err := v.Ingest(ctx,
		"You have received UGX 50,000 from JOHN DOE 256781234567. Transaction ID: MTN123. Balance: UGX 1.",
		models.ProviderMTN); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := engine.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	select {
	case ev := <-events:
		if ev.State != session.StateVerified {
			t.Fatalf("terminal event: got %q, want %q", ev.State, session.StateVerified)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for verification")
	}
}

func TestCorrectTransactionID(t *testing.T) {
	v, engine, st := newTestVerifier(t)
	ctx := context.Background()

	claim, err := v.SubmitClaim(ctx, 50000, "ABC123")
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}
	if _, err := v.Ingest(ctx,
		"You have received UGX 50,000 from JOHN DOE 256781234567. Transaction ID: XYZ999. Balance: UGX 1.",
		models.ProviderMTN); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := engine.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got, _ := st.Claim(ctx, claim.ID)
	if got.Status != models.ClaimMismatch {
		t.Fatalf("claim status after scan: got %q, want %q", got.Status, models.ClaimMismatch)
	}

	// Supplying an id that still doesn't match the receipt is rejected.
	if _, err := v.CorrectTransactionID(ctx, claim.ID, "STILLWRONG"); !errors.Is(err, ErrWrongCorrectedID) {
		t.Fatalf("wrong corrected id: got %v, want ErrWrongCorrectedID", err)
	}

	conf, err := v.CorrectTransactionID(ctx, claim.ID, "XYZ999")
	if err != nil {
		t.Fatalf("CorrectTransactionID: %v", err)
	}
	if !conf.Matched || conf.ClaimedTransactionID != "XYZ999" {
		t.Errorf("corrective confirmation: got %+v", conf)
	}

	got, _ = st.Claim(ctx, claim.ID)
	if got.Status != models.ClaimVerified {
		t.Errorf("claim status after correction: got %q, want %q", got.Status, models.ClaimVerified)
	}

	// Correcting a claim that is not mismatched is rejected.
	if _, err := v.CorrectTransactionID(ctx, claim.ID, "XYZ999"); !errors.Is(err, ErrClaimNotMismatched) {
		t.Errorf("second correction: got %v, want ErrClaimNotMismatched", err)
	}

	confs, _ := v.Confirmations(ctx)
	if len(confs) != 2 {
		t.Fatalf("expected mismatch + corrective confirmations, got %d", len(confs))
	}
}

func TestListingsOrderedNewestFirst(t *testing.T) {
	v, _, st := newTestVerifier(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Insert out of chronological order, across statuses.
	receivedOffsets := []time.Duration{2 * time.Second, 0, time.Second}
	for i, off := range receivedOffsets {
		status := models.PaymentPending
		if i == 1 {
			status = models.PaymentVerified
		}
		p := &models.IncomingPayment{
			ID:            uuid.New(),
			Amount:        int64(1000 * (i + 1)),
			SenderName:    "JOHN DOE",
			TransactionID: "TX",
			Provider:      models.ProviderMTN,
			ReceivedAt:    base.Add(off),
			Status:        status,
		}
		if err := st.SavePayment(ctx, p); err != nil {
			t.Fatalf("SavePayment: %v", err)
		}
	}

	payments, err := v.Payments(ctx, "")
	if err != nil {
		t.Fatalf("Payments: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(payments))
	}
	for i := 1; i < len(payments); i++ {
		if payments[i].ReceivedAt.After(payments[i-1].ReceivedAt) {
			t.Fatalf("payments not sorted newest first: %v before %v",
				payments[i-1].ReceivedAt, payments[i].ReceivedAt)
		}
	}

	submittedOffsets := []time.Duration{time.Second, 3 * time.Second, 0}
	for i, off := range submittedOffsets {
		status := models.ClaimAwaiting
		if i == 2 {
			status = models.ClaimTimedOut
		}
		c := &models.PaymentClaim{
			ID:                   uuid.New(),
			Amount:               int64(1000 * (i + 1)),
			ClaimedTransactionID: "TX",
			SubmittedAt:          base.Add(off),
			Status:               status,
		}
		if err := st.SaveClaim(ctx, c); err != nil {
			t.Fatalf("SaveClaim: %v", err)
		}
	}

	claims, err := v.Claims(ctx, "")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}
	for i := 1; i < len(claims); i++ {
		if claims[i].SubmittedAt.After(claims[i-1].SubmittedAt) {
			t.Fatalf("claims not sorted newest first: %v before %v",
				claims[i-1].SubmittedAt, claims[i].SubmittedAt)
		}
	}
}

func TestStartVerificationUnknownClaim(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	if _, err := v.StartVerification(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
