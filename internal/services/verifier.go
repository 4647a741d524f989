// internal/services/verifier.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"studio-verifier/internal/matcher"
	"studio-verifier/internal/models"
	"studio-verifier/internal/session"
	"studio-verifier/internal/sms"
	"studio-verifier/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive number of minor currency units")
	ErrMissingTransactionID = errors.New("a transaction id is required")
	ErrClaimNotMismatched   = errors.New("claim is not in mismatch state")
	ErrWrongCorrectedID     = errors.New("corrected id does not match the received payment's transaction id")
)

// Verifier is the application service tying the parser, store, matching
// engine and session hub together behind the four external operations.
type Verifier struct {
	store        store.Store
	engine       *matcher.Engine
	hub          *session.Hub
	notifier     *Notifier
	pollInterval time.Duration
	maxAttempts  int
}

func NewVerifier(st store.Store, engine *matcher.Engine, hub *session.Hub, notifier *Notifier, pollInterval time.Duration, maxAttempts int) *Verifier {
	return &Verifier{
		store:        st,
		engine:       engine,
		hub:          hub,
		notifier:     notifier,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Ingest parses one provider notification and stores the resulting
// payment. A malformed message is logged and rejected without creating a
// record; the pipeline stays up for the next message.
func (v *Verifier) Ingest(ctx context.Context, rawText string, provider models.Provider) (*models.IncomingPayment, error) {
	payment, err := sms.Parse(rawText, provider)
	if err != nil {
		log.Printf("WARN: Dropping unparseable %s notification: %v", provider, err)
		return nil, err
	}

	if err := v.store.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("could not store incoming payment: %w", err)
	}

	log.Printf("INFO: Ingested %s payment %s: %d minor units from '%s' (tx %s)",
		payment.Provider, payment.ID, payment.Amount, payment.SenderName, payment.TransactionID)
	v.engine.Kick()
	return payment, nil
}

// SubmitClaim registers a customer's payment claim. Amount and claimed
// transaction id are validated at this boundary; rejected claims never
// enter the registry.
func (v *Verifier) SubmitClaim(ctx context.Context, amount int64, claimedTransactionID string) (*models.PaymentClaim, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	claimedTransactionID = strings.TrimSpace(claimedTransactionID)
	if claimedTransactionID == "" {
		return nil, ErrMissingTransactionID
	}

	claim := &models.PaymentClaim{
		ID:                   uuid.New(),
		Amount:               amount,
		ClaimedTransactionID: claimedTransactionID,
		SubmittedAt:          time.Now().UTC(),
		Status:               models.ClaimAwaiting,
	}
	if err := v.store.SaveClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("could not store claim: %w", err)
	}

	log.Printf("INFO: Claim %s submitted: %d minor units, claimed tx '%s'", claim.ID, amount, claimedTransactionID)
	v.engine.Kick()
	return claim, nil
}

// StartVerification starts the bounded polling session for a claim and
// returns its event stream. Cancelling ctx stops the session without a
// terminal event.
func (v *Verifier) StartVerification(ctx context.Context, claimID uuid.UUID) (<-chan session.Event, error) {
	if _, err := v.store.Claim(ctx, claimID); err != nil {
		return nil, err
	}
	s := session.New(claimID, v.store, v.hub, v.pollInterval, v.maxAttempts)
	return s.Run(ctx), nil
}

// CorrectTransactionID resolves a mismatch: the operator supplies the id
// the customer should have quoted, and if it equals the received payment's
// actual transaction id the claim is promoted to verified with a new
// corrective Confirmation. No new polling session is started; the success
// is re-published through the hub for any stream still open on the claim.
func (v *Verifier) CorrectTransactionID(ctx context.Context, claimID uuid.UUID, correctedID string) (*models.Confirmation, error) {
	claim, err := v.store.Claim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != models.ClaimMismatch {
		return nil, ErrClaimNotMismatched
	}

	prev, err := v.store.LatestConfirmationForClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("no confirmation on record for mismatched claim %s: %w", claimID, err)
	}

	correctedID = strings.TrimSpace(correctedID)
	if correctedID != prev.ActualTransactionID {
		return nil, ErrWrongCorrectedID
	}

	conf := &models.Confirmation{
		ID:                   uuid.New(),
		ClaimID:              claimID,
		PaymentID:            prev.PaymentID,
		ClaimedTransactionID: correctedID,
		ActualTransactionID:  prev.ActualTransactionID,
		Amount:               prev.Amount,
		SenderName:           prev.SenderName,
		Matched:              true,
		ConfirmedAt:          time.Now().UTC(),
	}
	if err := v.store.Correct(ctx, conf); err != nil {
		return nil, err
	}

	log.Printf("INFO: Claim %s corrected by operator, now verified against tx '%s'", claimID, correctedID)
	v.hub.ConfirmationRecorded(conf)
	if v.notifier != nil {
		v.notifier.ConfirmationRecorded(conf)
	}
	return conf, nil
}

// Payments lists payment records, optionally filtered by status. Empty
// status means all. Results are ordered newest receipt first so the
// dashboard listing is stable between calls.
func (v *Verifier) Payments(ctx context.Context, status models.PaymentStatus) ([]*models.IncomingPayment, error) {
	statuses := []models.PaymentStatus{models.PaymentPending, models.PaymentVerified, models.PaymentMismatch}
	if status != "" {
		statuses = []models.PaymentStatus{status}
	}
	var out []*models.IncomingPayment
	for _, s := range statuses {
		batch, err := v.store.PaymentsByStatus(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Claims lists claim records, optionally filtered by status, newest
// submission first.
func (v *Verifier) Claims(ctx context.Context, status models.ClaimStatus) ([]*models.PaymentClaim, error) {
	statuses := []models.ClaimStatus{models.ClaimAwaiting, models.ClaimVerified, models.ClaimMismatch, models.ClaimTimedOut}
	if status != "" {
		statuses = []models.ClaimStatus{status}
	}
	var out []*models.PaymentClaim
	for _, s := range statuses {
		batch, err := v.store.ClaimsByStatus(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Confirmations returns the append-only confirmation log.
func (v *Verifier) Confirmations(ctx context.Context) ([]*models.Confirmation, error) {
	return v.store.Confirmations(ctx)
}
