package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Visitor is one user's ticket for one event date.
type Visitor struct {
	bun.BaseModel `bun:"table:visitors"`

	ID             int64     `json:"id" bun:"id,pk,autoincrement"`
	UserID         int64     `json:"user_id" bun:"user_id,notnull"`
	EventDate      string    `json:"event_date" bun:"event_date,notnull"`
	RedemptionCode string    `json:"-" bun:"redemption_code,notnull,unique"`
	IsActive       bool      `json:"is_active" bun:"is_active,notnull"`
	IsUsed         bool      `json:"is_used" bun:"is_used,notnull"`
	PaymentID      string    `json:"payment_id,omitempty" bun:"payment_id,nullzero"`
	OrderID        string    `json:"order_id,omitempty" bun:"order_id,nullzero"`
	CreatedAt      time.Time `json:"created_at" bun:"created_at,notnull"`
	ActivatedAt    time.Time `json:"activated_at,omitempty" bun:"activated_at,nullzero"`
	UsedAt         time.Time `json:"used_at,omitempty" bun:"used_at,nullzero"`
}

type VisitorState string

const (
	VisitorPending VisitorState = "pending"
	VisitorActive  VisitorState = "active"
	VisitorUsed    VisitorState = "used"
)

func (v Visitor) State() VisitorState {
	switch {
	case v.IsUsed:
		return VisitorUsed
	case v.IsActive:
		return VisitorActive
	default:
		return VisitorPending
	}
}

// ShortCodeLen is how many code characters are shown to users.
const ShortCodeLen = 5

func (v Visitor) ShortCode() string {
	if len(v.RedemptionCode) <= ShortCodeLen {
		return v.RedemptionCode
	}
	return v.RedemptionCode[:ShortCodeLen]
}

// CheckResult is the outcome of a door check.
type CheckResult string

const (
	CheckValid       CheckResult = "valid"
	CheckAlreadyUsed CheckResult = "already_used"
	CheckUnpaid      CheckResult = "unpaid"
	CheckInvalid     CheckResult = "invalid"
)

// CheckIn is what a door check reports back.
type CheckIn struct {
	Result    CheckResult `json:"result"`
	UserID    int64       `json:"user_id,omitempty"`
	EventDate string      `json:"event_date,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}
