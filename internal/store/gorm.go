package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio-verifier/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Gorm is the durable backend. The CAS discipline lives in the WHERE
// clauses: every status transition is an UPDATE guarded by the expected
// current status, checked via RowsAffected inside one transaction.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

type paymentRecord struct {
	ID            string `gorm:"primaryKey"`
	Amount        int64
	SenderName    string
	TransactionID string
	Provider      string
	ReceivedAt    time.Time
	Status        string `gorm:"index"`
	ClaimID       *string
}

func (paymentRecord) TableName() string { return "payments" }

type claimRecord struct {
	ID                   string `gorm:"primaryKey"`
	Amount               int64
	ClaimedTransactionID string
	SubmittedAt          time.Time
	Status               string `gorm:"index"`
}

func (claimRecord) TableName() string { return "claims" }

type confirmationRecord struct {
	ID                   string `gorm:"primaryKey"`
	ClaimID              string `gorm:"index"`
	PaymentID            string
	ClaimedTransactionID string
	ActualTransactionID  string
	Amount               int64
	SenderName           string
	Matched              bool
	ConfirmedAt          time.Time `gorm:"index"`
}

func (confirmationRecord) TableName() string { return "confirmations" }

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates the three record tables.
func OpenSQLite(path string) (*Gorm, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&paymentRecord{}, &claimRecord{}, &confirmationRecord{}); err != nil {
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) SavePayment(ctx context.Context, p *models.IncomingPayment) error {
	return g.db.WithContext(ctx).Save(toPaymentRecord(p)).Error
}

func (g *Gorm) Payment(ctx context.Context, id uuid.UUID) (*models.IncomingPayment, error) {
	var rec paymentRecord
	err := g.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromPaymentRecord(&rec)
}

func (g *Gorm) PaymentsByStatus(ctx context.Context, status models.PaymentStatus) ([]*models.IncomingPayment, error) {
	var recs []paymentRecord
	if err := g.db.WithContext(ctx).Where("status = ?", string(status)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.IncomingPayment, 0, len(recs))
	for i := range recs {
		p, err := fromPaymentRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Gorm) SaveClaim(ctx context.Context, c *models.PaymentClaim) error {
	return g.db.WithContext(ctx).Save(toClaimRecord(c)).Error
}

func (g *Gorm) Claim(ctx context.Context, id uuid.UUID) (*models.PaymentClaim, error) {
	var rec claimRecord
	err := g.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromClaimRecord(&rec)
}

func (g *Gorm) ClaimsByStatus(ctx context.Context, status models.ClaimStatus) ([]*models.PaymentClaim, error) {
	var recs []claimRecord
	if err := g.db.WithContext(ctx).Where("status = ?", string(status)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.PaymentClaim, 0, len(recs))
	for i := range recs {
		c, err := fromClaimRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (g *Gorm) MarkClaimTimedOut(ctx context.Context, claimID uuid.UUID) error {
	res := g.db.WithContext(ctx).Model(&claimRecord{}).
		Where("id = ? AND status = ?", claimID.String(), string(models.ClaimAwaiting)).
		Update("status", string(models.ClaimTimedOut))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return claimMissingOrConflict(ctx, g.db, claimID)
	}
	return nil
}

func (g *Gorm) Link(ctx context.Context, conf *models.Confirmation) error {
	claimStatus, paymentStatus := terminalStatuses(conf.Matched)
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&claimRecord{}).
			Where("id = ? AND status = ?", conf.ClaimID.String(), string(models.ClaimAwaiting)).
			Update("status", string(claimStatus))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return claimMissingOrConflict(ctx, tx, conf.ClaimID)
		}

		claimID := conf.ClaimID.String()
		res = tx.Model(&paymentRecord{}).
			Where("id = ? AND status = ?", conf.PaymentID.String(), string(models.PaymentPending)).
			Updates(map[string]interface{}{
				"status":   string(paymentStatus),
				"claim_id": claimID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return paymentMissingOrConflict(ctx, tx, conf.PaymentID)
		}

		return tx.Create(toConfirmationRecord(conf)).Error
	})
}

func (g *Gorm) Correct(ctx context.Context, conf *models.Confirmation) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&claimRecord{}).
			Where("id = ? AND status = ?", conf.ClaimID.String(), string(models.ClaimMismatch)).
			Update("status", string(models.ClaimVerified))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return claimMissingOrConflict(ctx, tx, conf.ClaimID)
		}

		res = tx.Model(&paymentRecord{}).
			Where("id = ? AND status = ?", conf.PaymentID.String(), string(models.PaymentMismatch)).
			Update("status", string(models.PaymentVerified))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return paymentMissingOrConflict(ctx, tx, conf.PaymentID)
		}

		return tx.Create(toConfirmationRecord(conf)).Error
	})
}

func (g *Gorm) Confirmations(ctx context.Context) ([]*models.Confirmation, error) {
	var recs []confirmationRecord
	if err := g.db.WithContext(ctx).Order("confirmed_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Confirmation, 0, len(recs))
	for i := range recs {
		conf, err := fromConfirmationRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, conf)
	}
	return out, nil
}

func (g *Gorm) LatestConfirmationForClaim(ctx context.Context, claimID uuid.UUID) (*models.Confirmation, error) {
	var rec confirmationRecord
	err := g.db.WithContext(ctx).
		Where("claim_id = ?", claimID.String()).
		Order("confirmed_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromConfirmationRecord(&rec)
}

// claimMissingOrConflict distinguishes a CAS miss from an unknown id so
// callers can tell a race from a bad request.
func claimMissingOrConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	var n int64
	if err := tx.WithContext(ctx).Model(&claimRecord{}).Where("id = ?", id.String()).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func paymentMissingOrConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	var n int64
	if err := tx.WithContext(ctx).Model(&paymentRecord{}).Where("id = ?", id.String()).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func toPaymentRecord(p *models.IncomingPayment) *paymentRecord {
	rec := &paymentRecord{
		ID:            p.ID.String(),
		Amount:        p.Amount,
		SenderName:    p.SenderName,
		TransactionID: p.TransactionID,
		Provider:      string(p.Provider),
		ReceivedAt:    p.ReceivedAt,
		Status:        string(p.Status),
	}
	if p.ClaimID != nil {
		s := p.ClaimID.String()
		rec.ClaimID = &s
	}
	return rec
}

func fromPaymentRecord(rec *paymentRecord) (*models.IncomingPayment, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt payment id %q: %w", rec.ID, err)
	}
	p := &models.IncomingPayment{
		ID:            id,
		Amount:        rec.Amount,
		SenderName:    rec.SenderName,
		TransactionID: rec.TransactionID,
		Provider:      models.Provider(rec.Provider),
		ReceivedAt:    rec.ReceivedAt,
		Status:        models.PaymentStatus(rec.Status),
	}
	if rec.ClaimID != nil {
		claimID, err := uuid.Parse(*rec.ClaimID)
		if err != nil {
			return nil, fmt.Errorf("corrupt claim id %q on payment %s: %w", *rec.ClaimID, rec.ID, err)
		}
		p.ClaimID = &claimID
	}
	return p, nil
}

func toClaimRecord(c *models.PaymentClaim) *claimRecord {
	return &claimRecord{
		ID:                   c.ID.String(),
		Amount:               c.Amount,
		ClaimedTransactionID: c.ClaimedTransactionID,
		SubmittedAt:          c.SubmittedAt,
		Status:               string(c.Status),
	}
}

func fromClaimRecord(rec *claimRecord) (*models.PaymentClaim, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt claim id %q: %w", rec.ID, err)
	}
	return &models.PaymentClaim{
		ID:                   id,
		Amount:               rec.Amount,
		ClaimedTransactionID: rec.ClaimedTransactionID,
		SubmittedAt:          rec.SubmittedAt,
		Status:               models.ClaimStatus(rec.Status),
	}, nil
}

func toConfirmationRecord(conf *models.Confirmation) *confirmationRecord {
	return &confirmationRecord{
		ID:                   conf.ID.String(),
		ClaimID:              conf.ClaimID.String(),
		PaymentID:            conf.PaymentID.String(),
		ClaimedTransactionID: conf.ClaimedTransactionID,
		ActualTransactionID:  conf.ActualTransactionID,
		Amount:               conf.Amount,
		SenderName:           conf.SenderName,
		Matched:              conf.Matched,
		ConfirmedAt:          conf.ConfirmedAt,
	}
}

func fromConfirmationRecord(rec *confirmationRecord) (*models.Confirmation, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt confirmation id %q: %w", rec.ID, err)
	}
	claimID, err := uuid.Parse(rec.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("corrupt claim id %q on confirmation %s: %w", rec.ClaimID, rec.ID, err)
	}
	paymentID, err := uuid.Parse(rec.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("corrupt payment id %q on confirmation %s: %w", rec.PaymentID, rec.ID, err)
	}
	return &models.Confirmation{
		ID:                   id,
		ClaimID:              claimID,
		PaymentID:            paymentID,
		ClaimedTransactionID: rec.ClaimedTransactionID,
		ActualTransactionID:  rec.ActualTransactionID,
		Amount:               rec.Amount,
		SenderName:           rec.SenderName,
		Matched:              rec.Matched,
		ConfirmedAt:          rec.ConfirmedAt,
	}, nil
}
