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
	"ms-passbot/internal/registration/redis"
	"ms-passbot/internal/utils"
)

type Store interface {
	Register(ctx context.Context, userID int64, date string, active bool) (*models.Visitor, error)
	AttachPayment(ctx context.Context, code, paymentID, orderID string) error
	Activate(ctx context.Context, code string) (*models.Visitor, error)
	Release(ctx context.Context, code string) (bool, error)
	GetAvailable(ctx context.Context, date string) (int, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) error
	SetPaymentSession(ctx context.Context, orderID, paymentID, url string) error
}

type PaymentAdapter interface {
	Provider() string
	InitPayment(ctx context.Context, req payment.InitRequest) (*payment.Session, error)
	AwaitConfirmation(ctx context.Context, paymentID string, timeout time.Duration) payment.Result
}

// Presenter shows a purchase to the buyer. Its errors are logged and never
// undo a reservation or a confirmed payment.
type Presenter interface {
	PaymentLink(ctx context.Context, v models.Visitor, paymentURL string, timeout time.Duration) error
	Ticket(ctx context.Context, v models.Visitor) error
}

type Options struct {
	// Amount in minor units.
	Amount      int64
	Description string
	Timeout     time.Duration
	// SuccessURL builds the gateway return link from the short code.
	SuccessURL func(shortCode string) string
}

// Service runs the purchase flow: reserve, pay, then activate or release.
type Service struct {
	Store    Store
	Payments PaymentAdapter
	Lock     redis.Locker
	Kafka    kafka.Publisher

	opts Options
	log  *logger.Logger
	now  func() time.Time
}

func NewService(store Store, payments PaymentAdapter, lock redis.Locker, publisher kafka.Publisher, opts Options, log *logger.Logger) *Service {
	if lock == nil {
		lock = redis.NopLocker{}
	}
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		Store:    store,
		Payments: payments,
		Lock:     lock,
		Kafka:    publisher,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

type PurchaseRequest struct {
	UserID    int64
	Date      string
	Presenter Presenter
}

// Purchase sells one ticket for req.Date to req.UserID. Expected refusals come
// back as an Outcome; an error means the store or the gateway failed, and any
// reservation made on the way has been given back unless payment was already
// confirmed.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (Outcome, error) {
	out := Outcome{Date: req.Date, OrderID: utils.NewOrderID()}
	// cleanup must run even when the caller is going away
	fin := context.WithoutCancel(ctx)

	locked, err := s.Lock.Acquire(ctx, req.UserID, req.Date, out.OrderID)
	switch {
	case err != nil:
		s.log.Warn("REGISTRATION", fmt.Sprintf("purchase lock unavailable for %d/%s: %v", req.UserID, req.Date, err))
	case !locked:
		return s.finish(out, OutcomeInProgress), nil
	default:
		defer func() {
			if err := s.Lock.Release(fin, req.UserID, req.Date, out.OrderID); err != nil {
				s.log.Warn("REGISTRATION", fmt.Sprintf("release purchase lock %d/%s: %v", req.UserID, req.Date, err))
			}
		}()
	}

	visitor, err := s.Store.Register(ctx, req.UserID, req.Date, false)
	if err != nil {
		if kind, ok := rejection(err); ok {
			return s.finish(out, kind), nil
		}
		metrics.TrackPurchase("error")
		return out, fmt.Errorf("register %d for %s: %w", req.UserID, req.Date, err)
	}
	out.Visitor = visitor
	s.log.LogVisitor("RESERVE", visitor.RedemptionCode, fmt.Sprintf("user %d, date %s", req.UserID, req.Date))
	s.publish(fin, models.NewVisitorEventDto(models.VisitorReserved, *visitor, s.now()))
	s.refreshAvailable(fin, req.Date)

	err = s.Store.CreatePayment(ctx, &models.Payment{
		OrderID:   out.OrderID,
		Provider:  s.Payments.Provider(),
		UserID:    req.UserID,
		EventDate: req.Date,
		Amount:    s.opts.Amount,
		Status:    models.PaymentNew,
	})
	if err != nil {
		return s.abort(fin, out, fmt.Errorf("journal payment: %w", err))
	}

	session, err := s.Payments.InitPayment(ctx, payment.InitRequest{
		Amount:      s.opts.Amount,
		OrderID:     out.OrderID,
		Description: s.opts.Description,
		SuccessURL:  s.successURL(*visitor),
	})
	if err != nil {
		s.closePayment(fin, out.OrderID, models.PaymentRejected)
		return s.abort(fin, out, err)
	}
	out.PaymentID = session.PaymentID

	if err := s.Store.SetPaymentSession(ctx, out.OrderID, session.PaymentID, session.PaymentURL); err != nil {
		s.log.Warn("PAYMENT", fmt.Sprintf("journal session of order %s: %v", out.OrderID, err))
	}
	// the reconciler needs the payment id to tell a paid reservation from an abandoned one
	if err := s.Store.AttachPayment(ctx, visitor.RedemptionCode, session.PaymentID, out.OrderID); err != nil {
		s.closePayment(fin, out.OrderID, models.PaymentCancelled)
		return s.abort(fin, out, fmt.Errorf("attach payment: %w", err))
	}
	visitor.PaymentID = session.PaymentID
	visitor.OrderID = out.OrderID

	if req.Presenter != nil {
		if err := req.Presenter.PaymentLink(ctx, *visitor, session.PaymentURL, s.opts.Timeout); err != nil {
			s.log.Warn("REGISTRATION", fmt.Sprintf("payment link to %d not delivered: %v", req.UserID, err))
		}
	}

	start := time.Now()
	result := s.Payments.AwaitConfirmation(ctx, session.PaymentID, s.opts.Timeout)
	metrics.TrackPaymentWait(time.Since(start))

	switch result {
	case payment.ResultConfirmed:
		return s.confirm(fin, out, req.Presenter)
	case payment.ResultCancelled:
		s.log.Warn("REGISTRATION", fmt.Sprintf("wait for payment %s interrupted, reservation left pending", session.PaymentID))
		return s.finish(out, OutcomeInterrupted), nil
	case payment.ResultRejected:
		s.closePayment(fin, out.OrderID, models.PaymentRejected)
		if err := s.release(fin, *visitor); err != nil {
			return out, err
		}
		return s.finish(out, OutcomePaymentRejected), nil
	default:
		s.closePayment(fin, out.OrderID, models.PaymentTimedOut)
		if err := s.release(fin, *visitor); err != nil {
			return out, err
		}
		return s.finish(out, OutcomePaymentTimedOut), nil
	}
}

func (s *Service) confirm(ctx context.Context, out Outcome, p Presenter) (Outcome, error) {
	s.closePayment(ctx, out.OrderID, models.PaymentConfirmed)

	active, err := s.Store.Activate(ctx, out.Visitor.RedemptionCode)
	if err != nil {
		// the record keeps its payment id, so the reconciler retries activation
		s.log.Error("REGISTRATION", fmt.Sprintf("payment %s confirmed but activation failed: %v", out.PaymentID, err))
		metrics.TrackPurchase("error")
		return out, fmt.Errorf("activate after payment %s: %w", out.PaymentID, err)
	}
	out.Visitor = active
	s.log.LogVisitor("ACTIVATE", active.RedemptionCode, fmt.Sprintf("user %d, date %s", active.UserID, active.EventDate))
	s.publish(ctx, models.NewVisitorEventDto(models.VisitorActivated, *active, s.now()))

	if p != nil {
		if err := p.Ticket(ctx, *active); err != nil {
			s.log.Warn("REGISTRATION", fmt.Sprintf("ticket to %d not delivered: %v", active.UserID, err))
		}
	}
	return s.finish(out, OutcomeSuccess), nil
}

// abort gives the reservation back and reports cause.
func (s *Service) abort(ctx context.Context, out Outcome, cause error) (Outcome, error) {
	metrics.TrackPurchase("error")
	if err := s.release(ctx, *out.Visitor); err != nil {
		return out, errors.Join(cause, err)
	}
	return out, cause
}

func (s *Service) release(ctx context.Context, v models.Visitor) error {
	released, err := s.Store.Release(ctx, v.RedemptionCode)
	if err != nil {
		s.log.Error("REGISTRATION", fmt.Sprintf("release reservation %s: %v", v.ShortCode(), err))
		return fmt.Errorf("release reservation %s: %w", v.ShortCode(), err)
	}
	if released {
		s.log.LogVisitor("RELEASE", v.RedemptionCode, fmt.Sprintf("user %d, date %s", v.UserID, v.EventDate))
		s.publish(ctx, models.NewVisitorEventDto(models.VisitorReleased, v, s.now()))
		s.refreshAvailable(ctx, v.EventDate)
	}
	return nil
}

func (s *Service) closePayment(ctx context.Context, orderID string, status models.PaymentStatus) {
	if err := s.Store.UpdatePaymentStatus(ctx, orderID, status); err != nil {
		s.log.Warn("PAYMENT", fmt.Sprintf("journal %s for order %s: %v", status, orderID, err))
	}
}

func (s *Service) finish(out Outcome, kind OutcomeKind) Outcome {
	out.Kind = kind
	metrics.TrackPurchase(kind.String())
	return out
}

func (s *Service) successURL(v models.Visitor) string {
	if s.opts.SuccessURL == nil {
		return ""
	}
	return s.opts.SuccessURL(v.ShortCode())
}

func (s *Service) publish(ctx context.Context, event models.DomainEventDto) {
	if err := s.Kafka.PublishDomainEvent(ctx, event); err != nil {
		s.log.Warn("KAFKA", fmt.Sprintf("publish %s: %v", event.Type, err))
	}
}

func (s *Service) refreshAvailable(ctx context.Context, date string) {
	if n, err := s.Store.GetAvailable(ctx, date); err == nil {
		metrics.SetAvailable(date, n)
	}
}

func rejection(err error) (OutcomeKind, bool) {
	switch {
	case errors.Is(err, models.ErrAlreadyRegistered):
		return OutcomeAlreadyRegistered, true
	case errors.Is(err, models.ErrReservationPending):
		return OutcomeInProgress, true
	case errors.Is(err, models.ErrEventFull):
		return OutcomeEventFull, true
	case errors.Is(err, models.ErrEventNotFound):
		return OutcomeEventNotFound, true
	}
	return 0, false
}
