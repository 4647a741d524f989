// Package sms turns provider payment notifications into IncomingPayment
// records. Each provider is a Grammar table entry; adding a provider means
// adding an entry, not a code path.
package sms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"studio-verifier/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Grammar describes how to pull the three required fields out of one
// provider's notification text. MinorUnitExp shifts the parsed amount into
// minor currency units (0 for UGX, 2 for a cents-based currency).
type Grammar struct {
	Provider     models.Provider
	Amount       *regexp.Regexp
	Sender       *regexp.Regexp
	Reference    *regexp.Regexp
	MinorUnitExp int32
}

// Grammars for the two networks the studio receives payments on. The
// sender field is uppercase words followed by a masked phone number; the
// reference label differs per network.
var grammars = map[models.Provider]Grammar{
	models.ProviderMTN: {
		Provider:  models.ProviderMTN,
		Amount:    regexp.MustCompile(`UGX ([0-9,]+) from`),
		Sender:    regexp.MustCompile(`from ([A-Z\s]+)(\d{9,})`),
		Reference: regexp.MustCompile(`Transaction ID: ([A-Z0-9]+)`),
	},
	models.ProviderAirtel: {
		Provider:  models.ProviderAirtel,
		Amount:    regexp.MustCompile(`received ([0-9,]+) UGX`),
		Sender:    regexp.MustCompile(`from ([A-Z\s]+)(\d{9,})`),
		Reference: regexp.MustCompile(`Ref: ([A-Z0-9]+)`),
	},
}

// ErrUnknownProvider is returned for a provider tag with no grammar.
var ErrUnknownProvider = errors.New("unknown provider")

// ParseError reports which field of which provider's grammar could not be
// extracted. A ParseError never aborts the ingestion pipeline; the message
// is logged and dropped.
type ParseError struct {
	Provider models.Provider
	Field    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not extract %s from %s notification", e.Field, e.Provider)
}

// Parse extracts an IncomingPayment from raw notification text. The record
// is created with status pending and ReceivedAt set to now.
func Parse(raw string, provider models.Provider) (*models.IncomingPayment, error) {
	g, ok := grammars[provider]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}

	amount, err := extractAmount(g, raw)
	if err != nil {
		return nil, err
	}

	senderMatch := g.Sender.FindStringSubmatch(raw)
	if senderMatch == nil {
		return nil, &ParseError{Provider: provider, Field: "sender"}
	}
	sender := strings.TrimSpace(senderMatch[1])
	if sender == "" {
		return nil, &ParseError{Provider: provider, Field: "sender"}
	}

	refMatch := g.Reference.FindStringSubmatch(raw)
	if refMatch == nil {
		return nil, &ParseError{Provider: provider, Field: "transaction id"}
	}

	return &models.IncomingPayment{
		ID:            uuid.New(),
		Amount:        amount,
		SenderName:    sender,
		TransactionID: refMatch[1],
		Provider:      provider,
		ReceivedAt:    time.Now().UTC(),
		Status:        models.PaymentPending,
	}, nil
}

func extractAmount(g Grammar, raw string) (int64, error) {
	m := g.Amount.FindStringSubmatch(raw)
	if m == nil {
		return 0, &ParseError{Provider: g.Provider, Field: "amount"}
	}

	// Thousands separators are display noise; strip them before parsing.
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, &ParseError{Provider: g.Provider, Field: "amount"}
	}

	minor := d.Shift(g.MinorUnitExp)
	if !minor.IsPositive() || !minor.IsInteger() {
		return 0, &ParseError{Provider: g.Provider, Field: "amount"}
	}
	return minor.IntPart(), nil
}
