package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is one dated occurrence with a capacity limit. CurrentCount tracks
// slot-holding visitors (pending or active) for the date.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	Date         string    `json:"date" bun:"date,pk"`
	MaxCapacity  int       `json:"max_capacity" bun:"max_capacity,notnull"`
	CurrentCount int       `json:"current_count" bun:"current_count,notnull"`
	CreatedAt    time.Time `json:"created_at" bun:"created_at,notnull"`
	UpdatedAt    time.Time `json:"updated_at" bun:"updated_at,notnull"`
}

func (e Event) Available() int {
	if e.CurrentCount >= e.MaxCapacity {
		return 0
	}
	return e.MaxCapacity - e.CurrentCount
}

func (e Event) IsFull() bool {
	return e.CurrentCount >= e.MaxCapacity
}

// EventAvailability is an upcoming event as seen by one user.
type EventAvailability struct {
	Event
	HasTicket bool `json:"has_ticket"`
}
