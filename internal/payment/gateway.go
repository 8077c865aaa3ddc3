package payment

import (
	"context"
	"errors"
)

// Status is a gateway payment status reduced to what the poll loop acts on.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusFormShowed Status = "FORM_SHOWED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusRejected   Status = "REJECTED"
)

type InitRequest struct {
	// Amount in minor units.
	Amount      int64
	OrderID     string
	Description string
	SuccessURL  string
}

// Session is what the gateway hands back for a new payment.
type Session struct {
	PaymentID  string
	PaymentURL string
}

// Gateway is an external acquiring provider.
type Gateway interface {
	Name() string
	InitPayment(ctx context.Context, req InitRequest) (*Session, error)
	GetState(ctx context.Context, paymentID string) (Status, error)
}

var ErrInitFailed = errors.New("payment initialisation failed")
