// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies the mobile-money network an SMS notification came from.
type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderAirtel Provider = "airtel"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentMismatch PaymentStatus = "mismatch"
)

type ClaimStatus string

const (
	ClaimAwaiting ClaimStatus = "awaiting"
	ClaimVerified ClaimStatus = "verified"
	ClaimMismatch ClaimStatus = "mismatch"
	ClaimTimedOut ClaimStatus = "timed_out"
)

// IncomingPayment is a payment notification parsed from a provider SMS.
// Amount is an integer count of minor currency units. Records are never
// deleted; the matcher is the only writer after creation.
type IncomingPayment struct {
	ID            uuid.UUID     `json:"id"`
	Amount        int64         `json:"amount"`
	SenderName    string        `json:"sender_name"`
	TransactionID string        `json:"transaction_id"`
	Provider      Provider      `json:"provider"`
	ReceivedAt    time.Time     `json:"received_at"`
	Status        PaymentStatus `json:"status"`
	ClaimID       *uuid.UUID    `json:"claim_id,omitempty"`
}

// PaymentClaim is a customer's assertion of having sent a payment,
// awaiting reconciliation against an IncomingPayment.
type PaymentClaim struct {
	ID                   uuid.UUID   `json:"id"`
	Amount               int64       `json:"amount"`
	ClaimedTransactionID string      `json:"claimed_transaction_id"`
	SubmittedAt          time.Time   `json:"submitted_at"`
	Status               ClaimStatus `json:"status"`
}

// Confirmation is the engine's verdict pairing a claim to a payment.
// The confirmation log is append-only; a mismatch later corrected by an
// operator gets a second, corrective Confirmation rather than an edit.
type Confirmation struct {
	ID                   uuid.UUID `json:"id"`
	ClaimID              uuid.UUID `json:"claim_id"`
	PaymentID            uuid.UUID `json:"payment_id"`
	ClaimedTransactionID string    `json:"claimed_transaction_id"`
	ActualTransactionID  string    `json:"actual_transaction_id"`
	Amount               int64     `json:"amount"`
	SenderName           string    `json:"sender_name"`
	Matched              bool      `json:"matched"`
	ConfirmedAt          time.Time `json:"confirmed_at"`
}
