package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	VisitorReserved  = "visitor.reserved"
	VisitorActivated = "visitor.activated"
	VisitorReleased  = "visitor.released"
	VisitorRedeemed  = "visitor.redeemed"
	EventUpserted    = "event.upserted"
	EventDeleted     = "event.deleted"
)

// DomainEventDto is the payload published for every committed ticket or
// event change. Only the short code prefix leaves the process.
type DomainEventDto struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id,omitempty"`
	EventDate  string    `json:"event_date"`
	CodePrefix string    `json:"code_prefix,omitempty"`
	Available  *int      `json:"available,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewVisitorEventDto(eventType string, v Visitor, at time.Time) DomainEventDto {
	return DomainEventDto{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     v.UserID,
		EventDate:  v.EventDate,
		CodePrefix: v.ShortCode(),
		OccurredAt: at.UTC(),
	}
}

func NewEventChangeDto(eventType string, e Event, at time.Time) DomainEventDto {
	available := e.Available()
	return DomainEventDto{
		ID:         uuid.New(),
		Type:       eventType,
		EventDate:  e.Date,
		Available:  &available,
		OccurredAt: at.UTC(),
	}
}
