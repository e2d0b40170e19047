package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld means another request owns the settlement lock.
	ErrLockHeld    = errors.New("lock_held")
	ErrLockInvalid = errors.New("invalid_lock_request")
)

// compare-and-delete so a request whose lock expired cannot drop the next
// owner's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes settlement requests for one booking across api
// replicas. The ledger's unique index stays the source of truth; the
// lock only turns a racing duplicate into a fast 409.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Release frees a held lock.
type Release func(ctx context.Context) error

// LockSettlement takes the booking's lock for at most ttl. Payouts and
// refunds share it.
func (l *Locker) LockSettlement(ctx context.Context, bookingID int64, ttl time.Duration) (Release, error) {
	if l == nil || l.client == nil {
		return nil, ErrNotConfigured
	}
	if bookingID <= 0 || ttl <= 0 {
		return nil, ErrLockInvalid
	}

	key := SettlementLockKey(bookingID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

func SettlementLockKey(bookingID int64) string {
	return fmt.Sprintf("payoutd:settlement:%d", bookingID)
}
