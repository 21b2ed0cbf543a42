// FILE: lease.go
// Package main – Exclusive account-session lease.
//
// One terminal account must be driven by exactly one agent. When REDIS_URL is
// set the agent takes a Redis lease on its account key at startup (SET NX PX),
// refreshes it at the top of every tick, and deletes it on shutdown. Refresh
// and release only touch the key while it still holds this process's token, so
// a lease that expired and was taken over is never extended or removed.
//
// Without Redis the lease is a no-op; exclusivity then rests on deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	ErrLeaseHeld = errors.New("account lease held by another agent")
	ErrLeaseLost = errors.New("account lease lost")
)

// SessionLease guards the one-session-per-account rule.
type SessionLease interface {
	Acquire(ctx context.Context) error
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

type noopLease struct{}

func (noopLease) Acquire(context.Context) error { return nil }
func (noopLease) Refresh(context.Context) error { return nil }
func (noopLease) Release(context.Context) error { return nil }

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type RedisLease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// leaseKey names the lease for one broker account.
func leaseKey(server string, login int64) string {
	return fmt.Sprintf("mt5agent:lease:%s:%d", server, login)
}

// NewRedisLease connects to url (redis://...) and prepares a lease on key.
func NewRedisLease(ctx context.Context, url, key string, ttl time.Duration) (*RedisLease, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLease{rdb: rdb, key: key, token: uuid.New().String(), ttl: ttl}, nil
}

func (l *RedisLease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLeaseHeld, l.key)
	}
	return nil
}

func (l *RedisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lease refresh: %w", err)
	}
	if n == 0 {
		// expired (e.g. Redis restart); retake it unless someone else already has
		if err := l.Acquire(ctx); err != nil {
			return fmt.Errorf("%w (%s): %v", ErrLeaseLost, l.key, err)
		}
	}
	return nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	defer l.rdb.Close()
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}
