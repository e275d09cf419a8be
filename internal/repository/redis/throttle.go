// Package redis implements the verification send throttle on Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:verify:send:"

// reserveScript trims sends older than the window, then records one more
// only while fewer than limit remain. Rejected calls leave the set untouched,
// so retrying during a lockout never extends it.
//
// KEYS[1] send log; ARGV: now ms, exclusive cutoff, limit, member, window ms.
var reserveScript = redis.NewScript(`
local key = KEYS[1]

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

// SendThrottle is a sliding-window log of accepted sends per phone. The
// check and the insert run as one script, so concurrent requests across
// instances never exceed the limit.
type SendThrottle struct {
	client  *redis.Client
	nowFunc func() time.Time
}

// NewSendThrottle creates a new Redis-backed send throttle.
func NewSendThrottle(client *redis.Client) *SendThrottle {
	return &SendThrottle{client: client, nowFunc: time.Now}
}

// WithClock replaces the time source.
func (t *SendThrottle) WithClock(now func() time.Time) *SendThrottle {
	t.nowFunc = now
	return t
}

// Allow records a send for phone and returns true if fewer than limit sends
// were recorded in the trailing window. Otherwise it records nothing and
// returns false.
func (t *SendThrottle) Allow(ctx context.Context, phone string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("throttle window must be positive")
	}

	now := t.nowFunc().UnixMilli()
	cutoff := "(" + strconv.FormatInt(now-window.Milliseconds(), 10)
	ok, err := reserveScript.Run(ctx, t.client, []string{keyPrefix + phone},
		now, cutoff, limit, uuid.NewString(), window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis reserve send slot: %w", err)
	}
	return ok == 1, nil
}
