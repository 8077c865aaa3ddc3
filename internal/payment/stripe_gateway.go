package payment

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-passbot/internal/config"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway sells the ticket through a hosted Checkout Session; the
// session id plays the role of the payment id.
type StripeGateway struct {
	api      *client.API
	currency string
}

func NewStripeGateway(cfg config.StripeConfig, backends *stripe.Backends) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(cfg.SecretKey, backends)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	return &StripeGateway{api: sc, currency: cfg.Currency}, nil
}

func (g *StripeGateway) Name() string {
	return config.ProviderStripe
}

func (g *StripeGateway) InitPayment(ctx context.Context, req InitRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &Session{PaymentID: s.ID, PaymentURL: s.URL}, nil
}

func (g *StripeGateway) GetState(ctx context.Context, paymentID string) (Status, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(paymentID, params)
	if err != nil {
		return "", err
	}
	return stripeStatus(s), nil
}

func stripeStatus(s *stripe.CheckoutSession) Status {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusConfirmed
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return StatusRejected
	default:
		return StatusPending
	}
}
