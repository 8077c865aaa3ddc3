package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-passbot/internal/models"
)

// GetEvent returns the ledger row for date.
func (d *DB) GetEvent(ctx context.Context, date string) (*models.Event, error) {
	return getEvent(ctx, d.Bun, date)
}

func getEvent(ctx context.Context, db bun.IDB, date string) (*models.Event, error) {
	var event models.Event
	err := db.NewSelect().
		Model(&event).
		Where("date = ?", date).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event %s: %w", date, err)
	}
	return &event, nil
}

// GetAvailable is max_capacity - current_count; unknown events have none.
func (d *DB) GetAvailable(ctx context.Context, date string) (int, error) {
	event, err := d.GetEvent(ctx, date)
	if errors.Is(err, models.ErrEventNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return event.Available(), nil
}

// IsFull is true for full and for unknown events.
func (d *DB) IsFull(ctx context.Context, date string) (bool, error) {
	event, err := d.GetEvent(ctx, date)
	if errors.Is(err, models.ErrEventNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return event.IsFull(), nil
}

// AddOrUpdateEvent creates the event or changes its capacity. current_count is
// never touched; lowering capacity under it fails with ErrCapacityBelowCount.
func (d *DB) AddOrUpdateEvent(ctx context.Context, date string, maxCapacity int) (*models.Event, bool, error) {
	if maxCapacity < 0 {
		return nil, false, fmt.Errorf("capacity must not be negative: %d", maxCapacity)
	}

	var (
		result  *models.Event
		created bool
	)
	now := d.now()

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		event, err := getEvent(ctx, tx, date)
		if errors.Is(err, models.ErrEventNotFound) {
			event = &models.Event{
				Date:        date,
				MaxCapacity: maxCapacity,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("insert event %s: %w", date, ErrConstraintViolation)
				}
				return fmt.Errorf("insert event %s: %w", date, err)
			}
			result, created = event, true
			return nil
		}
		if err != nil {
			return err
		}

		if maxCapacity < event.CurrentCount {
			return fmt.Errorf("%w: %d < %d", models.ErrCapacityBelowCount, maxCapacity, event.CurrentCount)
		}

		event.MaxCapacity = maxCapacity
		event.UpdatedAt = now
		_, err = tx.NewUpdate().
			Model(event).
			Column("max_capacity", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update event %s: %w", date, err)
		}
		result = event
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// DeleteEvent removes the event together with its visitor records and
// returns how many visitor records went with it.
func (d *DB) DeleteEvent(ctx context.Context, date string) (int, error) {
	var removed int

	err := d.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := getEvent(ctx, tx, date); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*models.Visitor)(nil)).
			Where("event_date = ?", date).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete visitors of %s: %w", date, err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		_, err = tx.NewDelete().
			Model((*models.Event)(nil)).
			Where("date = ?", date).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete event %s: %w", date, err)
		}
		return nil
	})
	return removed, err
}

// ListEvents returns events dated on or after from, soonest first.
func (d *DB) ListEvents(ctx context.Context, from string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("date >= ?", from).
		Order("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListUpcomingFor marks the events userID already holds an open ticket for.
func (d *DB) ListUpcomingFor(ctx context.Context, userID int64, from string) ([]models.EventAvailability, error) {
	events, err := d.ListEvents(ctx, from)
	if err != nil {
		return nil, err
	}

	var held []string
	err = d.Bun.NewSelect().
		Model((*models.Visitor)(nil)).
		Column("event_date").
		Where("user_id = ?", userID).
		Where("is_used = ?", false).
		Where("event_date >= ?", from).
		Scan(ctx, &held)
	if err != nil {
		return nil, fmt.Errorf("list tickets of %d: %w", userID, err)
	}

	heldSet := make(map[string]bool, len(held))
	for _, date := range held {
		heldSet[date] = true
	}

	out := make([]models.EventAvailability, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventAvailability{Event: e, HasTicket: heldSet[e.Date]})
	}
	return out, nil
}

// recount sets current_count to the number of slot-holding visitors of date.
func recount(ctx context.Context, tx bun.Tx, date string) (int, error) {
	count, err := tx.NewSelect().
		Model((*models.Visitor)(nil)).
		Where("event_date = ?", date).
		Where("is_used = ?", false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count visitors of %s: %w", date, err)
	}

	_, err = tx.NewUpdate().
		Model((*models.Event)(nil)).
		Set("current_count = ?", count).
		Where("date = ?", date).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update count of %s: %w", date, err)
	}
	return count, nil
}
