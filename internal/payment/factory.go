package payment

import (
	"fmt"
	"net/http"

	"ms-passbot/internal/config"
)

// NewGateway builds the gateway named by cfg.Provider.
func NewGateway(cfg config.PaymentConfig, hc *http.Client) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderTinkoff:
		return NewTinkoffGateway(cfg.Tinkoff, hc), nil
	case config.ProviderStripe:
		gw, err := NewStripeGateway(cfg.Stripe, nil)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
