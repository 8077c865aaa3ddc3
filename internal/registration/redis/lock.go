package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker guards one purchase per (user, date) while its payment is open.
type Locker interface {
	Acquire(ctx context.Context, userID int64, date, owner string) (bool, error)
	Release(ctx context.Context, userID int64, date, owner string) error
}

type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{Client: client, TTL: ttl}
}

func lockKey(userID int64, date string) string {
	return fmt.Sprintf("purchase_lock:%d:%s", userID, date)
}

// releaseScript deletes the key only while it still holds owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the purchase lock for owner. It reports false when another
// purchase holds it.
func (r *Redis) Acquire(ctx context.Context, userID int64, date, owner string) (bool, error) {
	return r.Client.SetNX(ctx, lockKey(userID, date), owner, r.TTL).Result()
}

// Release drops the lock if owner still holds it. An expired or foreign lock
// is left alone.
func (r *Redis) Release(ctx context.Context, userID int64, date, owner string) error {
	err := releaseScript.Run(ctx, r.Client, []string{lockKey(userID, date)}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// IsLocked reports whether a purchase for the pair is in flight.
func (r *Redis) IsLocked(ctx context.Context, userID int64, date string) (bool, error) {
	n, err := r.Client.Exists(ctx, lockKey(userID, date)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NopLocker always grants the lock. The visitors unique index still keeps
// one open ticket per pair.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, int64, string, string) (bool, error) { return true, nil }
func (NopLocker) Release(context.Context, int64, string, string) error         { return nil }
