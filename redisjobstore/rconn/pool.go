// Package rconn wraps a redigo connection pool, grounded on
// huaban-periodic's db/conn_redis.go and driver/redis/redis.go pool setup,
// generalized with address/password/db/timeout options and a context-aware
// Do so callers can cancel a KV round-trip (spec §5, "Cancellation").
package rconn

import (
	"context"
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
)

// KV is the minimal command-execution surface Storage and the distributed
// mutex depend on. *Pool implements it against a live Redis; package
// redistest implements it in memory for tests, mirroring how the teacher's
// own driver.MemStoreDriver stands in for driver/redis in tests.
type KV interface {
	Do(ctx context.Context, cmd string, args ...any) (any, error)
}

// Options configures the pool. Zero values fall back to the documented
// defaults (spec §6 configuration table).
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	MaxIdle     int
	MaxActive   int
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = 8
	}
	return o
}

// Pool is a thin wrapper around *redis.Pool, safe for concurrent use across
// every facade call the way spec §5 requires of the shared KV multiplexer.
type Pool struct {
	pool *redis.Pool
}

// NewPool dials server lazily via redigo's own pool machinery; no connection
// is established until the first Do.
func NewPool(opts Options) *Pool {
	opts = opts.withDefaults()
	pool := &redis.Pool{
		MaxIdle:     opts.MaxIdle,
		MaxActive:   opts.MaxActive,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			dialOpts := []redis.DialOption{
				redis.DialConnectTimeout(opts.DialTimeout),
				redis.DialDatabase(opts.DB),
			}
			if opts.Password != "" {
				dialOpts = append(dialOpts, redis.DialPassword(opts.Password))
			}
			return redis.Dial("tcp", opts.Addr, dialOpts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return &Pool{pool: pool}
}

// Do runs a single command against a pooled connection, honoring ctx
// cancellation the way spec §5 requires between KV round-trips.
func (p *Pool) Do(ctx context.Context, cmd string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := p.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("rconn: get connection: %w", err)
	}
	defer conn.Close()
	return conn.Do(cmd, args...)
}

// Close releases every idle connection in the pool.
func (p *Pool) Close() error {
	return p.pool.Close()
}
