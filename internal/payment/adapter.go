package payment

import (
	"context"
	"fmt"
	"time"

	"ms-passbot/internal/logger"
)

// Result is the terminal state of one confirmation wait.
type Result int

const (
	ResultConfirmed Result = iota
	ResultRejected
	ResultTimedOut
	ResultCancelled
)

func (r Result) Confirmed() bool {
	return r == ResultConfirmed
}

func (r Result) String() string {
	switch r {
	case ResultConfirmed:
		return "confirmed"
	case ResultRejected:
		return "rejected"
	case ResultTimedOut:
		return "timed_out"
	case ResultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Adapter wraps a Gateway with a bounded confirmation wait.
type Adapter struct {
	gateway   Gateway
	interval  time.Duration
	formGrace time.Duration
	log       *logger.Logger
}

func NewAdapter(gateway Gateway, interval, formGrace time.Duration, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		gateway:   gateway,
		interval:  interval,
		formGrace: formGrace,
		log:       log,
	}
}

func (a *Adapter) Provider() string {
	return a.gateway.Name()
}

// InitPayment creates the payment. Errors are not retried.
func (a *Adapter) InitPayment(ctx context.Context, req InitRequest) (*Session, error) {
	session, err := a.gateway.InitPayment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s order %s: %v", ErrInitFailed, a.gateway.Name(), req.OrderID, err)
	}
	a.log.LogPayment("INIT", session.PaymentID, fmt.Sprintf("order %s, amount %d", req.OrderID, req.Amount))
	return session, nil
}

// GetState is a single status read.
func (a *Adapter) GetState(ctx context.Context, paymentID string) (Status, error) {
	return a.gateway.GetState(ctx, paymentID)
}

// AwaitConfirmation polls the gateway every interval until the payment is
// confirmed or rejected, the timeout passes, or ctx is done. The first
// FORM_SHOWED status pushes the deadline back by the form grace period.
// Gateway errors are treated as transient.
func (a *Adapter) AwaitConfirmation(ctx context.Context, paymentID string, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	extended := false

	for {
		select {
		case <-ctx.Done():
			a.log.LogPayment("CANCELLED", paymentID, "wait aborted")
			return ResultCancelled
		case <-timer.C:
			a.log.LogPayment("TIMEOUT", paymentID, fmt.Sprintf("no confirmation within %s", timeout))
			return ResultTimedOut
		case <-ticker.C:
		}

		status, err := a.gateway.GetState(ctx, paymentID)
		if err != nil {
			if ctx.Err() != nil {
				return ResultCancelled
			}
			a.log.Warn("PAYMENT", fmt.Sprintf("GetState %s failed, polling on: %v", paymentID, err))
			continue
		}

		switch status {
		case StatusConfirmed:
			a.log.LogPayment("CONFIRMED", paymentID, "payment confirmed")
			return ResultConfirmed
		case StatusRejected:
			a.log.LogPayment("REJECTED", paymentID, "payment rejected")
			return ResultRejected
		case StatusFormShowed:
			if !extended && a.formGrace > 0 {
				extended = true
				deadline = deadline.Add(a.formGrace)
				timer.Reset(time.Until(deadline))
				a.log.LogPayment("FORM_SHOWED", paymentID, fmt.Sprintf("deadline extended by %s", a.formGrace))
			}
		}
	}
}
