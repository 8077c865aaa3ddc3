package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewOrderID returns the merchant order id sent to the payment gateway.
func NewOrderID() string {
	return uuid.NewString()
}

// RedemptionCode is sha256(user_id || RFC3339 timestamp with microseconds), hex encoded.
func RedemptionCode(userID int64, at time.Time) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10) + at.UTC().Format("2006-01-02T15:04:05.000000Z07:00")))
	return hex.EncodeToString(sum[:])
}
