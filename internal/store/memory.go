package store

import (
	"context"
	"sync"

	"studio-verifier/internal/models"

	"github.com/google/uuid"
)

// Memory is the mutex-guarded in-memory backend. It is the default when no
// database path is configured and the reference implementation the GORM
// backend must agree with.
type Memory struct {
	mu            sync.Mutex
	payments      map[uuid.UUID]*models.IncomingPayment
	claims        map[uuid.UUID]*models.PaymentClaim
	confirmations []*models.Confirmation
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		payments: make(map[uuid.UUID]*models.IncomingPayment),
		claims:   make(map[uuid.UUID]*models.PaymentClaim),
	}
}

func (m *Memory) SavePayment(_ context.Context, p *models.IncomingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *Memory) Payment(_ context.Context, id uuid.UUID) (*models.IncomingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PaymentsByStatus(_ context.Context, status models.PaymentStatus) ([]*models.IncomingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IncomingPayment
	for _, p := range m.payments {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) SaveClaim(_ context.Context, c *models.PaymentClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *Memory) Claim(_ context.Context, id uuid.UUID) (*models.PaymentClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ClaimsByStatus(_ context.Context, status models.ClaimStatus) ([]*models.PaymentClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentClaim
	for _, c := range m.claims {
		if c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) MarkClaimTimedOut(_ context.Context, claimID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[claimID]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.ClaimAwaiting {
		return ErrConflict
	}
	c.Status = models.ClaimTimedOut
	return nil
}

func (m *Memory) Link(_ context.Context, conf *models.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.claims[conf.ClaimID]
	if !ok {
		return ErrNotFound
	}
	p, ok := m.payments[conf.PaymentID]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.ClaimAwaiting || p.Status != models.PaymentPending {
		return ErrConflict
	}

	claimStatus, paymentStatus := terminalStatuses(conf.Matched)
	c.Status = claimStatus
	p.Status = paymentStatus
	claimID := conf.ClaimID
	p.ClaimID = &claimID

	cp := *conf
	m.confirmations = append(m.confirmations, &cp)
	return nil
}

func (m *Memory) Correct(_ context.Context, conf *models.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.claims[conf.ClaimID]
	if !ok {
		return ErrNotFound
	}
	p, ok := m.payments[conf.PaymentID]
	if !ok {
		return ErrNotFound
	}
	if c.Status != models.ClaimMismatch || p.Status != models.PaymentMismatch {
		return ErrConflict
	}

	c.Status = models.ClaimVerified
	p.Status = models.PaymentVerified

	cp := *conf
	m.confirmations = append(m.confirmations, &cp)
	return nil
}

func (m *Memory) Confirmations(_ context.Context) ([]*models.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Confirmation, 0, len(m.confirmations))
	for _, conf := range m.confirmations {
		cp := *conf
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) LatestConfirmationForClaim(_ context.Context, claimID uuid.UUID) (*models.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.confirmations) - 1; i >= 0; i-- {
		if m.confirmations[i].ClaimID == claimID {
			cp := *m.confirmations[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
