// Package store is the persistence seam for the reconciliation engine.
// The ingestion pipeline, the matching engine, and the verification
// sessions all run on independent timers against the same records, so
// every terminal status transition goes through a compare-and-set guard
// inside the store rather than a read-modify-write at the call site.
package store

import (
	"context"
	"errors"

	"studio-verifier/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-set precondition fails,
	// e.g. two overlapping matching ticks racing for the same claim or
	// payment. The losing caller must not assume any write happened.
	ErrConflict = errors.New("record status conflict")
)

type Store interface {
	// SavePayment appends a new incoming payment record.
	SavePayment(ctx context.Context, p *models.IncomingPayment) error
	Payment(ctx context.Context, id uuid.UUID) (*models.IncomingPayment, error)
	PaymentsByStatus(ctx context.Context, status models.PaymentStatus) ([]*models.IncomingPayment, error)

	// SaveClaim appends a new payment claim.
	SaveClaim(ctx context.Context, c *models.PaymentClaim) error
	Claim(ctx context.Context, id uuid.UUID) (*models.PaymentClaim, error)
	ClaimsByStatus(ctx context.Context, status models.ClaimStatus) ([]*models.PaymentClaim, error)

	// MarkClaimTimedOut moves a claim from awaiting to timed_out.
	// Returns ErrConflict if the claim is no longer awaiting.
	MarkClaimTimedOut(ctx context.Context, claimID uuid.UUID) error

	// Link records a pairing verdict as one transaction: the claim moves
	// awaiting -> verified|mismatch, the payment moves pending ->
	// verified|mismatch (per conf.Matched) and is tagged with the claim id,
	// and the Confirmation is appended. If either record is not in its
	// expected state nothing is written and ErrConflict is returned.
	Link(ctx context.Context, conf *models.Confirmation) error

	// Correct records an operator's corrective re-match: claim and payment
	// move mismatch -> verified and a corrective matched=true Confirmation
	// is appended, atomically. ErrConflict if either is not in mismatch.
	Correct(ctx context.Context, conf *models.Confirmation) error

	// Confirmations returns the append-only confirmation log, ordered by
	// ConfirmedAt (insertion order).
	Confirmations(ctx context.Context) ([]*models.Confirmation, error)

	// LatestConfirmationForClaim returns the newest Confirmation linked to
	// the claim, or ErrNotFound if none exists yet.
	LatestConfirmationForClaim(ctx context.Context, claimID uuid.UUID) (*models.Confirmation, error)
}

// terminalStatuses maps a verdict to the pair of statuses Link must set.
func terminalStatuses(matched bool) (models.ClaimStatus, models.PaymentStatus) {
	if matched {
		return models.ClaimVerified, models.PaymentVerified
	}
	return models.ClaimMismatch, models.PaymentMismatch
}
