package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-passbot/internal/models"
)

// CreatePayment journals a new payment attempt.
func (d *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	now := d.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.PaymentNew
	}
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert payment %s: %w", p.OrderID, ErrConstraintViolation)
		}
		return fmt.Errorf("insert payment %s: %w", p.OrderID, err)
	}
	return nil
}

// UpdatePaymentStatus moves the attempt to status. Final statuses are never
// overwritten.
func (d *DB) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", d.now()).
		Where("order_id = ?", orderID).
		Where("status NOT IN (?)", bun.In(finalStatuses())).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := d.GetPayment(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// SetPaymentSession stores what the gateway returned for the attempt.
func (d *DB) SetPaymentSession(ctx context.Context, orderID, paymentID, url string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("payment_id = ?", paymentID).
		Set("payment_url = ?", url).
		Set("updated_at = ?", d.now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", orderID, err)
	}
	return nil
}

func (d *DB) GetPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := d.Bun.NewSelect().
		Model(&p).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payment %s: %w", orderID, err)
	}
	return &p, nil
}

func finalStatuses() []string {
	return []string{
		string(models.PaymentConfirmed),
		string(models.PaymentRejected),
		string(models.PaymentTimedOut),
		string(models.PaymentCancelled),
	}
}
