package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentNew        PaymentStatus = "NEW"
	PaymentFormShowed PaymentStatus = "FORM_SHOWED"
	PaymentConfirmed  PaymentStatus = "CONFIRMED"
	PaymentRejected   PaymentStatus = "REJECTED"
	PaymentTimedOut   PaymentStatus = "TIMED_OUT"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) IsFinal() bool {
	switch s {
	case PaymentConfirmed, PaymentRejected, PaymentTimedOut, PaymentCancelled:
		return true
	}
	return false
}

// Payment journals one payment attempt.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID         int64         `json:"id" bun:"id,pk,autoincrement"`
	OrderID    string        `json:"order_id" bun:"order_id,notnull,unique"`
	PaymentID  string        `json:"payment_id,omitempty" bun:"payment_id,nullzero"`
	Provider   string        `json:"provider" bun:"provider,notnull"`
	UserID     int64         `json:"user_id" bun:"user_id,notnull"`
	EventDate  string        `json:"event_date" bun:"event_date,notnull"`
	Amount     int64         `json:"amount" bun:"amount,notnull"`
	Status     PaymentStatus `json:"status" bun:"status,notnull"`
	PaymentURL string        `json:"url,omitempty" bun:"payment_url,nullzero"`
	CreatedAt  time.Time     `json:"created_at" bun:"created_at,notnull"`
	UpdatedAt  time.Time     `json:"updated_at" bun:"updated_at,notnull"`
}
