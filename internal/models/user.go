package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a known bot user, kept for broadcasts.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64     `json:"id" bun:"id,pk,autoincrement"`
	UserID    int64     `json:"user_id" bun:"user_id,notnull,unique"`
	Username  string    `json:"username,omitempty" bun:"username,nullzero"`
	FirstName string    `json:"first_name,omitempty" bun:"first_name,nullzero"`
	CreatedAt time.Time `json:"created_at" bun:"created_at,notnull"`
}
