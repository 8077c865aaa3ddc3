package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-passbot/internal/models"
	"ms-passbot/internal/utils"
)

// MaxCodeAttempts bounds redemption code regeneration on collision.
const MaxCodeAttempts = 5

// Register reserves a slot for userID on date and stores a new visitor with a
// fresh redemption code, pending unless active is set. The capacity increment
// is the first write of the transaction, so concurrent registrations for one
// date queue on the event row.
func (d *DB) Register(ctx context.Context, userID int64, date string, active bool) (*models.Visitor, error) {
	var visitor *models.Visitor
	now := d.now()

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("current_count = current_count + 1").
			Set("updated_at = ?", now).
			Where("date = ?", date).
			Where("current_count < max_capacity").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reserve slot on %s: %w", date, err)
		}
		reserved, _ := res.RowsAffected()

		if err := checkOpenTicket(ctx, tx, userID, date); err != nil {
			return err
		}

		if reserved == 0 {
			if _, err := getEvent(ctx, tx, date); err != nil {
				return err
			}
			return models.ErrEventFull
		}

		code, err := freeCode(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		visitor = &models.Visitor{
			UserID:         userID,
			EventDate:      date,
			RedemptionCode: code,
			IsActive:       active,
			CreatedAt:      now,
		}
		if active {
			visitor.ActivatedAt = now
		}

		if _, err := tx.NewInsert().Model(visitor).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert visitor: %w", ErrConstraintViolation)
			}
			return fmt.Errorf("insert visitor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visitor, nil
}

func checkOpenTicket(ctx context.Context, tx bun.Tx, userID int64, date string) error {
	var open models.Visitor
	err := tx.NewSelect().
		Model(&open).
		Where("user_id = ?", userID).
		Where("event_date = ?", date).
		Where("is_used = ?", false).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select open ticket: %w", err)
	}
	if open.IsActive {
		return models.ErrAlreadyRegistered
	}
	return models.ErrReservationPending
}

// freeCode derives the code from userID and at, moving the timestamp forward
// one microsecond per collision.
func freeCode(ctx context.Context, tx bun.Tx, userID int64, at time.Time) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code := utils.RedemptionCode(userID, at)
		taken, err := tx.NewSelect().
			Model((*models.Visitor)(nil)).
			Where("redemption_code = ?", code).
			Exists(ctx)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
		at = at.Add(time.Microsecond)
	}
	return "", models.ErrCodeExhausted
}

// AttachPayment records which payment pays for the pending visitor.
func (d *DB) AttachPayment(ctx context.Context, code, paymentID, orderID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Visitor)(nil)).
		Set("payment_id = ?", paymentID).
		Set("order_id = ?", orderID).
		Where("redemption_code = ?", code).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attach payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrVisitorNotFound
	}
	return nil
}

// Activate confirms the pending visitor holding code. Activating an active
// visitor is a no-op; used tickets cannot be activated again.
func (d *DB) Activate(ctx context.Context, code string) (*models.Visitor, error) {
	return d.activate(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("redemption_code = ?", code)
	})
}

// ActivateFor confirms the open ticket of userID for date.
func (d *DB) ActivateFor(ctx context.Context, userID int64, date string) (*models.Visitor, error) {
	return d.activate(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).
			Where("event_date = ?", date).
			Where("is_used = ?", false)
	})
}

func (d *DB) activate(ctx context.Context, where func(*bun.SelectQuery) *bun.SelectQuery) (*models.Visitor, error) {
	var visitor models.Visitor
	now := d.now()

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		err := where(tx.NewSelect().Model(&visitor)).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrVisitorNotFound
		}
		if err != nil {
			return fmt.Errorf("select visitor: %w", err)
		}
		if visitor.IsUsed {
			return models.ErrVisitorNotFound
		}
		if visitor.IsActive {
			return nil
		}

		visitor.IsActive = true
		visitor.ActivatedAt = now
		_, err = tx.NewUpdate().
			Model(&visitor).
			Column("is_active", "activated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("activate visitor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

// Redeem consumes an active ticket at the door: it becomes inactive and used,
// and the date's count is recomputed in the same transaction.
func (d *DB) Redeem(ctx context.Context, code string) (models.CheckIn, error) {
	check := models.CheckIn{Result: models.CheckInvalid, CheckedAt: d.now()}

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var visitor models.Visitor
		err := tx.NewSelect().
			Model(&visitor).
			Where("redemption_code = ?", code).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select visitor: %w", err)
		}

		check.UserID = visitor.UserID
		check.EventDate = visitor.EventDate

		switch visitor.State() {
		case models.VisitorUsed:
			check.Result = models.CheckAlreadyUsed
			return nil
		case models.VisitorPending:
			check.Result = models.CheckUnpaid
			return nil
		}

		visitor.IsActive = false
		visitor.IsUsed = true
		visitor.UsedAt = check.CheckedAt
		_, err = tx.NewUpdate().
			Model(&visitor).
			Column("is_active", "is_used", "used_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("redeem visitor: %w", err)
		}
		if _, err := recount(ctx, tx, visitor.EventDate); err != nil {
			return err
		}
		check.Result = models.CheckValid
		return nil
	})
	if err != nil {
		return models.CheckIn{}, err
	}
	return check, nil
}

// Deactivate is Redeem reduced to "was an active ticket consumed".
func (d *DB) Deactivate(ctx context.Context, code string) (bool, error) {
	check, err := d.Redeem(ctx, code)
	if err != nil {
		return false, err
	}
	return check.Result == models.CheckValid, nil
}

// Release deletes a pending visitor and gives its slot back. Active and used
// tickets are left alone and reported as not released.
func (d *DB) Release(ctx context.Context, code string) (bool, error) {
	var released bool

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var visitor models.Visitor
		err := tx.NewSelect().
			Model(&visitor).
			Where("redemption_code = ?", code).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select visitor: %w", err)
		}
		if visitor.State() != models.VisitorPending {
			return nil
		}

		if _, err := tx.NewDelete().Model(&visitor).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("delete visitor: %w", err)
		}
		if _, err := recount(ctx, tx, visitor.EventDate); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// Delete removes every record of userID, or only those for date when it is
// not empty, and recomputes the affected counts. It returns how many records
// went and the distinct dates they belonged to.
func (d *DB) Delete(ctx context.Context, userID int64, date string) (int, []string, error) {
	var (
		removed  int
		affected []string
	)

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var dates []string
		q := tx.NewSelect().
			Model((*models.Visitor)(nil)).
			Column("event_date").
			Where("user_id = ?", userID)
		if date != "" {
			q = q.Where("event_date = ?", date)
		}
		if err := q.Scan(ctx, &dates); err != nil {
			return fmt.Errorf("select visitors of %d: %w", userID, err)
		}
		if len(dates) == 0 {
			return nil
		}

		del := tx.NewDelete().
			Model((*models.Visitor)(nil)).
			Where("user_id = ?", userID)
		if date != "" {
			del = del.Where("event_date = ?", date)
		}
		res, err := del.Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete visitors of %d: %w", userID, err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		seen := make(map[string]bool)
		for _, dt := range dates {
			if seen[dt] {
				continue
			}
			seen[dt] = true
			affected = append(affected, dt)
			if _, err := recount(ctx, tx, dt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return removed, affected, nil
}

// FindByHash looks a visitor up by full code, or by code prefix when strict is
// false. A prefix shared by several visitors yields ErrAmbiguousCode.
func (d *DB) FindByHash(ctx context.Context, code string, strict bool) (*models.Visitor, error) {
	return d.findByHash(ctx, code, strict, 0)
}

// FindForUser is the prefix lookup restricted to one user's tickets.
func (d *DB) FindForUser(ctx context.Context, userID int64, prefix string) (*models.Visitor, error) {
	return d.findByHash(ctx, prefix, false, userID)
}

func (d *DB) findByHash(ctx context.Context, code string, strict bool, userID int64) (*models.Visitor, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || !isHex(code) {
		return nil, models.ErrVisitorNotFound
	}

	var visitors []models.Visitor
	q := d.Bun.NewSelect().Model(&visitors)
	if strict {
		q = q.Where("redemption_code = ?", code)
	} else {
		q = q.Where("redemption_code LIKE ?", code+"%")
	}
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Order("id ASC").Limit(2).Scan(ctx); err != nil {
		return nil, fmt.Errorf("find visitor: %w", err)
	}

	switch len(visitors) {
	case 0:
		return nil, models.ErrVisitorNotFound
	case 1:
		return &visitors[0], nil
	default:
		return nil, models.ErrAmbiguousCode
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// ExistsFor reports whether userID holds an unused ticket for date in the
// given activation state.
func (d *DB) ExistsFor(ctx context.Context, userID int64, date string, active bool) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Visitor)(nil)).
		Where("user_id = ?", userID).
		Where("event_date = ?", date).
		Where("is_active = ?", active).
		Where("is_used = ?", false).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("visitor exists: %w", err)
	}
	return exists, nil
}

// ListUserTickets returns the active tickets of userID dated from on.
func (d *DB) ListUserTickets(ctx context.Context, userID int64, from string) ([]models.Visitor, error) {
	var visitors []models.Visitor
	err := d.Bun.NewSelect().
		Model(&visitors).
		Where("user_id = ?", userID).
		Where("is_active = ?", true).
		Where("event_date >= ?", from).
		Order("event_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets of %d: %w", userID, err)
	}
	return visitors, nil
}

// ListStalePending returns pending visitors created before the cutoff.
func (d *DB) ListStalePending(ctx context.Context, before time.Time) ([]models.Visitor, error) {
	var visitors []models.Visitor
	err := d.Bun.NewSelect().
		Model(&visitors).
		Where("is_active = ?", false).
		Where("is_used = ?", false).
		Where("created_at < ?", before.UTC()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stale visitors: %w", err)
	}
	return visitors, nil
}

// CountActive returns the number of active tickets for date.
func (d *DB) CountActive(ctx context.Context, date string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Visitor)(nil)).
		Where("event_date = ?", date).
		Where("is_active = ?", true).
		Count(ctx)
}
