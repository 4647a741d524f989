// Package matcher pairs awaiting claims against pending payments and
// records the verdicts. It is safe to run overlapping scans: every pairing
// goes through the store's compare-and-set Link, so a race loser simply
// skips the pair.
package matcher

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"studio-verifier/internal/models"
	"studio-verifier/internal/store"

	"github.com/google/uuid"
)

// ConfirmationSink receives every Confirmation the engine records. The
// session hub and the webhook notifier both implement it.
type ConfirmationSink interface {
	ConfirmationRecorded(conf *models.Confirmation)
}

type Engine struct {
	store    store.Store
	interval time.Duration
	sinks    []ConfirmationSink
	kick     chan struct{}
}

func New(st store.Store, interval time.Duration, sinks ...ConfirmationSink) *Engine {
	return &Engine{
		store:    st,
		interval: interval,
		sinks:    sinks,
		kick:     make(chan struct{}, 1),
	}
}

// Kick schedules an immediate scan, used right after an ingest or a claim
// submission so callers don't wait a full tick. Never blocks.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run drives periodic scans until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	log.Printf("INFO: Matching engine running, scan interval %s", e.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: Matching engine stopped.")
			return
		case <-ticker.C:
		case <-e.kick:
		}

		if _, err := e.Scan(ctx); err != nil {
			log.Printf("ERROR: Matching scan failed: %v", err)
		}
	}
}

// Scan performs one reconciliation pass and returns the number of
// confirmations recorded. A payment is a candidate for a claim when the
// amounts are equal and the payment arrived strictly after the claim was
// submitted. Candidates are consumed earliest-received first, ties broken
// by payment id, and claims are served oldest first so the pass is
// deterministic. Terminal records are never touched, so re-running a scan
// over an already-reconciled set records nothing.
func (e *Engine) Scan(ctx context.Context) (int, error) {
	claims, err := e.store.ClaimsByStatus(ctx, models.ClaimAwaiting)
	if err != nil {
		return 0, err
	}
	if len(claims) == 0 {
		return 0, nil
	}

	payments, err := e.store.PaymentsByStatus(ctx, models.PaymentPending)
	if err != nil {
		return 0, err
	}
	if len(payments) == 0 {
		return 0, nil
	}

	sort.Slice(claims, func(i, j int) bool {
		if !claims[i].SubmittedAt.Equal(claims[j].SubmittedAt) {
			return claims[i].SubmittedAt.Before(claims[j].SubmittedAt)
		}
		return idLess(claims[i].ID, claims[j].ID)
	})
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].ReceivedAt.Equal(payments[j].ReceivedAt) {
			return payments[i].ReceivedAt.Before(payments[j].ReceivedAt)
		}
		return idLess(payments[i].ID, payments[j].ID)
	})

	taken := make(map[uuid.UUID]bool)
	recorded := 0

	for _, claim := range claims {
		for _, payment := range payments {
			if taken[payment.ID] {
				continue
			}
			if payment.Amount != claim.Amount || !payment.ReceivedAt.After(claim.SubmittedAt) {
				continue
			}

			conf := buildConfirmation(claim, payment)
			if err := e.store.Link(ctx, conf); err != nil {
				if errors.Is(err, store.ErrConflict) {
					// A concurrent tick already reconciled one side of the
					// pair; leave this payment for the refreshed view.
					taken[payment.ID] = true
					continue
				}
				return recorded, err
			}

			taken[payment.ID] = true
			recorded++
			if conf.Matched {
				log.Printf("INFO: Claim %s verified against payment %s (tx %s)", claim.ID, payment.ID, payment.TransactionID)
			} else {
				log.Printf("WARN: Claim %s mismatched payment %s: claimed tx '%s', actual tx '%s'",
					claim.ID, payment.ID, claim.ClaimedTransactionID, payment.TransactionID)
			}
			for _, sink := range e.sinks {
				sink.ConfirmationRecorded(conf)
			}
			break
		}
	}

	return recorded, nil
}

func buildConfirmation(claim *models.PaymentClaim, payment *models.IncomingPayment) *models.Confirmation {
	return &models.Confirmation{
		ID:                   uuid.New(),
		ClaimID:              claim.ID,
		PaymentID:            payment.ID,
		ClaimedTransactionID: claim.ClaimedTransactionID,
		ActualTransactionID:  payment.TransactionID,
		Amount:               payment.Amount,
		SenderName:           payment.SenderName,
		Matched:              claim.ClaimedTransactionID == payment.TransactionID,
		ConfirmedAt:          time.Now().UTC(),
	}
}

func idLess(a, b uuid.UUID) bool {
	return strings.Compare(a.String(), b.String()) < 0
}
