package payment

import (
	"context"
	"net/http"

	"ms-passbot/internal/config"
	"ms-passbot/internal/payment/tinkoff"
)

// TinkoffGateway adapts the Tinkoff client to Gateway.
type TinkoffGateway struct {
	client *tinkoff.Client
}

func NewTinkoffGateway(cfg config.TinkoffConfig, hc *http.Client) *TinkoffGateway {
	return &TinkoffGateway{client: tinkoff.NewClient(cfg.TerminalKey, cfg.SecretKey, cfg.APIURL, hc)}
}

func (g *TinkoffGateway) Name() string {
	return config.ProviderTinkoff
}

func (g *TinkoffGateway) InitPayment(ctx context.Context, req InitRequest) (*Session, error) {
	reply, err := g.client.Init(ctx, tinkoff.InitRequest{
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		Description: req.Description,
		SuccessURL:  req.SuccessURL,
	})
	if err != nil {
		return nil, err
	}
	return &Session{PaymentID: string(reply.PaymentID), PaymentURL: reply.PaymentURL}, nil
}

func (g *TinkoffGateway) GetState(ctx context.Context, paymentID string) (Status, error) {
	reply, err := g.client.GetState(ctx, paymentID)
	if err != nil {
		return "", err
	}
	return tinkoffStatus(reply.Status), nil
}

func tinkoffStatus(raw string) Status {
	switch raw {
	case "CONFIRMED":
		return StatusConfirmed
	case "REJECTED", "CANCELED", "DEADLINE_EXPIRED", "AUTH_FAIL", "REVERSED", "REFUNDED", "PARTIAL_REFUNDED":
		return StatusRejected
	case "FORM_SHOWED":
		return StatusFormShowed
	default:
		return StatusPending
	}
}
