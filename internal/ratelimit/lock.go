package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "shiksha:lock:"

// compare-and-delete so a lease that outlived its ttl cannot drop a newer holder's key
const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockerDisabled = errors.New("locker not configured")
	ErrInvalidLease   = errors.New("invalid lease request")
)

// Locker hands out short-lived exclusive leases used to keep background
// sweeps to one replica at a time.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

// Lease is held until Release or until its ttl passes.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseLeaseScript),
	}
}

// Acquire returns a nil lease and no error when another holder has the name.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockerDisabled
	}
	name = strings.TrimSpace(name)
	if name == "" || ttl <= 0 {
		return nil, ErrInvalidLease
	}

	lease := &Lease{locker: l, key: lockKeyPrefix + name, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return lease, nil
}

func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil || ls.locker == nil {
		return nil
	}
	return ls.locker.release.Run(ctx, ls.locker.client, []string{ls.key}, ls.token).Err()
}
