package registration

import "ms-passbot/internal/models"

// OutcomeKind tags how a purchase ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAlreadyRegistered
	OutcomeEventFull
	OutcomeEventNotFound
	OutcomePaymentRejected
	OutcomePaymentTimedOut
	// another purchase for the same user and date is waiting on its payment
	OutcomeInProgress
	// shutdown while waiting; the reservation stays pending for the reconciler
	OutcomeInterrupted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAlreadyRegistered:
		return "already_registered"
	case OutcomeEventFull:
		return "event_full"
	case OutcomeEventNotFound:
		return "event_not_found"
	case OutcomePaymentRejected:
		return "payment_rejected"
	case OutcomePaymentTimedOut:
		return "payment_timed_out"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Outcome is the result of one purchase. Visitor is set once a reservation
// was made; on success it is the activated ticket.
type Outcome struct {
	Kind      OutcomeKind
	Date      string
	Visitor   *models.Visitor
	OrderID   string
	PaymentID string
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}
