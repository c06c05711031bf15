// Package lock implements the coarse, blocking, reentrancy-free distributed
// mutex spec §4.3 describes: SET NX PX to acquire, a compare-and-delete Lua
// script to release. Grounded on huaban-periodic's own redigo Do() idiom in
// db/utils_reids.go, generalized to the SETNX-with-TTL recipe the spec
// requires (the teacher's own key/value operations are plain GET/SET/DEL
// with no locking primitive of their own).
package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/google/uuid"

	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/rconn"
)

// ErrLockLost is returned by Unlock when the lock's TTL had already expired
// and another holder (or nobody) held the key; spec §7 requires this be
// logged, not raised as a hard error, so callers should treat it as
// informational.
var ErrLockLost = errors.New("lock: lost before release")

// releaseScript performs the atomic "delete if value matches" recipe as a
// Lua script run with EVAL.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Mutex is a single named distributed lock backed by one Redis key. It is
// not reentrant: every facade operation must acquire exactly once (spec
// §4.3).
type Mutex struct {
	pool       rconn.KV
	key        string
	instanceID string
	ttl        time.Duration
	backoffMin time.Duration
	backoffMax time.Duration
}

// New returns a Mutex on key with the given TTL. The spin-wait retry delay
// is always bounded to 10-50ms (spec §4.3: "sleep for a short bounded backoff
// (e.g. 10-50ms)").
func New(pool rconn.KV, key, instanceID string, ttl time.Duration) *Mutex {
	return &Mutex{
		pool:       pool,
		key:        key,
		instanceID: instanceID,
		ttl:        ttl,
		backoffMin: 10 * time.Millisecond,
		backoffMax: 50 * time.Millisecond,
	}
}

// Handle is the token proving ownership of an acquired lock, needed to
// release it safely.
type Handle struct {
	token string
}

// Lock blocks, retrying indefinitely with bounded backoff, until it acquires
// the lock or ctx is canceled (spec §4.3: "no exception is raised... callers
// do not time out acquiring the mutex").
func (m *Mutex) Lock(ctx context.Context) (*Handle, error) {
	token := m.instanceID + "-" + uuid.New().String()
	ttlMillis := int(m.ttl / time.Millisecond)
	if ttlMillis <= 0 {
		ttlMillis = 5000
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := m.pool.Do(ctx, "SET", m.key, token, "NX", "PX", ttlMillis)
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", m.key, err)
		}
		if reply != nil {
			return &Handle{token: token}, nil
		}

		delay := m.backoffMin + time.Duration(rand.Int63n(int64(m.backoffMax-m.backoffMin+1)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Unlock releases the lock iff h still holds it. For a TTL-expired lock it
// deletes nothing and returns ErrLockLost, which callers log rather than
// treat as a failure (spec §4.3: "no exception is raised on release
// after-expiry"; spec §7's LockLost error kind).
func (m *Mutex) Unlock(ctx context.Context, h *Handle) error {
	result, err := m.pool.Do(ctx, "EVAL", releaseScript, 1, m.key, h.token)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", m.key, err)
	}
	reply, err := redis.Int(result, nil)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", m.key, err)
	}
	if reply == 0 {
		return ErrLockLost
	}
	return nil
}
