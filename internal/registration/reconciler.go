package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-passbot/internal/kafka"
	"ms-passbot/internal/logger"
	"ms-passbot/internal/metrics"
	"ms-passbot/internal/models"
	"ms-passbot/internal/payment"
)

type ReconcileStore interface {
	ListStalePending(ctx context.Context, before time.Time) ([]models.Visitor, error)
	Activate(ctx context.Context, code string) (*models.Visitor, error)
	Release(ctx context.Context, code string) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error
	GetAvailable(ctx context.Context, date string) (int, error)
}

type StateReader interface {
	GetState(ctx context.Context, paymentID string) (payment.Status, error)
}

// Notifier tells a buyer how a reservation left behind by an unfinished
// purchase was resolved.
type Notifier interface {
	Ticket(ctx context.Context, v models.Visitor) error
	Released(ctx context.Context, v models.Visitor) error
}

type ReconcileReport struct {
	Checked   int
	Activated int
	Released  int
	Skipped   int
}

// Reconciler resolves reservations whose purchase never finished: the
// process stopped mid-wait or activation failed after payment.
type Reconciler struct {
	Store      ReconcileStore
	Payments   StateReader
	Notifier   Notifier
	Kafka      kafka.Publisher
	StaleAfter time.Duration

	log *logger.Logger
	now func() time.Time
}

func NewReconciler(store ReconcileStore, payments StateReader, notifier Notifier, publisher kafka.Publisher, staleAfter time.Duration, log *logger.Logger) *Reconciler {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		Store:      store,
		Payments:   payments,
		Notifier:   notifier,
		Kafka:      publisher,
		StaleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

// Reconcile handles every pending reservation older than StaleAfter. Paid
// ones are activated and delivered; the rest are released. A reservation
// whose payment state cannot be read is left for the next run.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	stale, err := r.Store.ListStalePending(ctx, r.now().Add(-r.StaleAfter))
	if err != nil {
		return report, err
	}

	for _, v := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		status := payment.StatusRejected
		if v.PaymentID != "" {
			st, err := r.Payments.GetState(ctx, v.PaymentID)
			if err != nil {
				r.log.Warn("RECONCILE", fmt.Sprintf("state of payment %s: %v", v.PaymentID, err))
				report.Skipped++
				continue
			}
			status = st
		}

		if status == payment.StatusConfirmed {
			if err := r.activate(ctx, v); err != nil {
				r.log.Error("RECONCILE", err.Error())
				report.Skipped++
				continue
			}
			report.Activated++
			continue
		}

		released, err := r.release(ctx, v, status)
		if err != nil {
			r.log.Error("RECONCILE", err.Error())
			report.Skipped++
			continue
		}
		if released {
			report.Released++
		}
	}

	if report.Checked > 0 {
		r.log.Info("RECONCILE", fmt.Sprintf("checked %d, activated %d, released %d, skipped %d",
			report.Checked, report.Activated, report.Released, report.Skipped))
	}
	return report, nil
}

func (r *Reconciler) activate(ctx context.Context, v models.Visitor) error {
	active, err := r.Store.Activate(ctx, v.RedemptionCode)
	if err != nil {
		return fmt.Errorf("activate %s: %w", v.ShortCode(), err)
	}
	r.journal(ctx, v.OrderID, models.PaymentConfirmed)
	metrics.TrackReconciled("activated")
	r.log.LogVisitor("ACTIVATE", v.RedemptionCode, "confirmed after the purchase ended")
	r.publish(ctx, models.NewVisitorEventDto(models.VisitorActivated, *active, r.now()))

	if r.Notifier != nil {
		if err := r.Notifier.Ticket(ctx, *active); err != nil {
			r.log.Warn("RECONCILE", fmt.Sprintf("ticket to %d not delivered: %v", active.UserID, err))
		}
	}
	return nil
}

func (r *Reconciler) release(ctx context.Context, v models.Visitor, status payment.Status) (bool, error) {
	released, err := r.Store.Release(ctx, v.RedemptionCode)
	if err != nil {
		return false, fmt.Errorf("release %s: %w", v.ShortCode(), err)
	}
	if !released {
		return false, nil
	}

	final := models.PaymentTimedOut
	if status == payment.StatusRejected {
		final = models.PaymentRejected
	}
	r.journal(ctx, v.OrderID, final)
	metrics.TrackReconciled("released")
	r.log.LogVisitor("RELEASE", v.RedemptionCode, fmt.Sprintf("stale reservation, payment %s", status))
	r.publish(ctx, models.NewVisitorEventDto(models.VisitorReleased, v, r.now()))
	if n, err := r.Store.GetAvailable(ctx, v.EventDate); err == nil {
		metrics.SetAvailable(v.EventDate, n)
	}

	if r.Notifier != nil {
		if err := r.Notifier.Released(ctx, v); err != nil {
			r.log.Warn("RECONCILE", fmt.Sprintf("release notice to %d not delivered: %v", v.UserID, err))
		}
	}
	return true, nil
}

func (r *Reconciler) journal(ctx context.Context, orderID string, status models.PaymentStatus) {
	if orderID == "" {
		return
	}
	err := r.Store.UpdatePaymentStatus(ctx, orderID, status)
	if err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
		r.log.Warn("RECONCILE", fmt.Sprintf("journal %s for order %s: %v", status, orderID, err))
	}
}

func (r *Reconciler) publish(ctx context.Context, event models.DomainEventDto) {
	if err := r.Kafka.PublishDomainEvent(ctx, event); err != nil {
		r.log.Warn("KAFKA", fmt.Sprintf("publish %s: %v", event.Type, err))
	}
}
