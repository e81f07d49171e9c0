// Package lock wraps a Redis-native lease as component H's distributed
// lock (spec.md §4.H). It is grounded on queue/redis/queue.go's go-redis
// client usage, generalized from a job queue's connection setup to a
// compare-and-swap lease: acquire is SETNX-with-TTL, renew and release
// are Lua scripts so the lock_id check and the TTL/delete mutation happen
// atomically on the Redis server rather than racing a separate client-side
// GET.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/telemetry"
)

const DefaultTTL = 60 * time.Second

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Lease is one acquired distributed lock. Its lock_id is only ever known
// to the holder that acquired it, so renew/release can tell "still ours"
// apart from "someone else grabbed it after it expired".
type Lease struct {
	client     *redis.Client
	key        string
	lockID     string
	ttl        time.Duration
	acquiredAt time.Time
	expiresAt  time.Time
	released   bool
}

func (l *Lease) Key() string           { return l.key }
func (l *Lease) LockID() string        { return l.lockID }
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }
func (l *Lease) ExpiresAt() time.Time  { return l.expiresAt }

// Acquire takes key's lease if it is unheld, initially valid for ttl (60s
// if ttl <= 0). Fails with ledgererr.CodeLockAlreadyHeld if another holder
// already owns key.
func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	lockID := uuid.NewString()

	ok, err := client.SetNX(ctx, key, lockID, ttl).Result()
	if err != nil {
		telemetry.Logger.WithField("lock_key", key).WithError(err).Error("acquire lock failed")
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "acquire lock "+key, err)
	}
	if !ok {
		telemetry.Logger.WithField("lock_key", key).Warn("lock already held")
		return nil, ledgererr.New(ledgererr.CodeLockAlreadyHeld, "lock already held: "+key)
	}

	now := time.Now().UTC()
	telemetry.Logger.WithFields(telemetry.Fields{"lock_key": key, "lock_id": lockID, "ttl": ttl}).Info("lock acquired")
	return &Lease{client: client, key: key, lockID: lockID, ttl: ttl, acquiredAt: now, expiresAt: now.Add(ttl)}, nil
}

// Renew extends the lease by its original TTL. A lost lease (another
// holder has since taken key, or it expired and nothing re-took it)
// reports (false, nil) rather than an error, per spec.md §4.H.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.lockID, l.ttl.Milliseconds()).Int()
	if err != nil {
		telemetry.Logger.WithField("lock_key", l.key).WithError(err).Error("renew lock failed")
		return false, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "renew lock "+l.key, err)
	}
	if res == 0 {
		telemetry.Logger.WithField("lock_key", l.key).Warn("lease lost, renew rejected")
		return false, nil
	}
	l.expiresAt = time.Now().UTC().Add(l.ttl)
	return true, nil
}

// IsValid combines a cheap wall-clock check against expiresAt with a
// renew round-trip: a lease that looks unexpired locally might already
// have been stolen server-side, and only the round-trip can tell.
func (l *Lease) IsValid(ctx context.Context) (bool, error) {
	if time.Now().UTC().After(l.expiresAt) {
		return false, nil
	}
	return l.Renew(ctx)
}

// Release gives up the lease if this holder still owns it. Idempotent:
// calling it twice, or after the lease was already lost, is not an error
// (spec.md §4.H: "swallow 404/409 as already released").
func (l *Lease) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.lockID).Result(); err != nil && err != redis.Nil {
		telemetry.Logger.WithField("lock_key", l.key).WithError(err).Error("release lock failed")
		return ledgererr.Wrap(ledgererr.CodeExternalProcessing, "release lock "+l.key, err)
	}
	telemetry.Logger.WithField("lock_key", l.key).Info("lock released")
	l.released = true
	return nil
}

// Dispose releases the lease if it has not already been released.
func (l *Lease) Dispose(ctx context.Context) error {
	return l.Release(ctx)
}
